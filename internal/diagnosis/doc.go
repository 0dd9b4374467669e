// Package diagnosis turns a failed workflow execution trace into a ranked,
// explained diagnosis without any model inference: every conclusion is
// computed from recorded evidence.
//
// # Overview
//
// The engine matches a trace against a catalog of failure signatures
// (internal/signature). Each signature is a weighted set of predicates; the
// weights of the predicates that fire sum into a confidence score, and
// patterns whose score reaches their threshold become findings. The engine
// then attributes the defect to a node in the execution path and assembles
// everything into a single Diagnosis.
//
// # Architecture
//
// Diagnosis follows a deterministic pipeline:
//
//  1. Evaluate every catalog pattern against the trace (evaluator.go)
//  2. Score, threshold, and rank the evaluations (scorer.go)
//  3. Trace the originating node with the winner's qualifiers (tracer.go)
//  4. Assemble findings, applying the combination table (assembler.go)
//
// Pattern evaluation fans out across goroutines because patterns are
// independent; everything downstream is synchronous.
//
// # Key Concepts
//
// Symptom node: the node whose failure was recorded. It is where the error
// surfaced, not necessarily where the defect lives.
//
// Originating node: the node the defect is attributed to. The tracer walks
// the path backwards from the symptom, nearest first, and asks the winning
// pattern's fired qualifiers whether each candidate explains the defect.
// When nothing upstream qualifies, the symptom node itself is the origin.
//
// Unclassified: a valid terminal outcome, not an error. When no pattern
// reaches its threshold the Diagnosis carries the raw failure data and the
// full score sheet so a reader can still see what was considered.
//
// # Determinism
//
// For identical traces, histories, and engine configuration, Diagnose
// produces byte-identical results: no timestamps, no generated identifiers,
// no map-ordered output. Run-specific metadata travels in RunInfo, which
// callers attach around the Diagnosis. Determinism is what makes the
// result cache (cache.go) safe.
//
// # Usage
//
//	engine := diagnosis.New(diagnosis.Options{})
//	result, err := engine.Diagnose(ctx, trace, history)
//
// # Testing
//
//   - engine_test.go: end-to-end scenarios, one per failure family
//   - scorer_test.go: threshold, ranking, and tie-break rules
//   - tracer_test.go: backward-scan attribution
//   - assembler_test.go: combination adjacency handling
//   - engine_property_test.go: determinism, bounds, and termination
package diagnosis
