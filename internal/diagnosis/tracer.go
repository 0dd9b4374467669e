package diagnosis

import (
	"fmt"

	"github.com/varenko/inquest/internal/signature"
	"github.com/varenko/inquest/internal/trace"
)

// traceOrigin attributes the defect to a node in the path.
//
// With a winning pattern, it walks the nodes before the failing node from
// nearest to farthest and asks the pattern's fired origin qualifiers
// whether each candidate explains the defect; the first that qualifies
// wins. The nearest-first direction is deliberate: an error is read as a
// symptom of the most proximate upstream defect unless evidence points
// further back.
//
// Without a winner the default probe accepts the nearest upstream node that
// did not succeed. When nothing upstream qualifies, the failing node itself
// is the origin: the defect is local, not inherited.
func traceOrigin(in signature.Input, failing *trace.NodeRun, failIdx int, winner *evaluation) Origin {
	var qualifiers []signature.Predicate
	if winner != nil {
		for _, hit := range winner.hits {
			for _, wp := range winner.pattern.Predicates {
				if wp.Predicate.Name == hit.Predicate && wp.Predicate.QualifyOrigin != nil {
					qualifiers = append(qualifiers, wp.Predicate)
				}
			}
		}
	}

	for i := failIdx - 1; i >= 0; i-- {
		if winner != nil {
			for _, q := range qualifiers {
				detail, ok := q.QualifyOrigin(in, i)
				if !ok {
					continue
				}
				node := in.Trace.NodeAt(i)
				return Origin{NodeName: node.Name, NodeType: node.TypeTag, Index: i, Reason: detail}
			}
			continue
		}
		node := in.Trace.NodeAt(i)
		if node.Status != trace.NodeSuccess {
			return Origin{
				NodeName: node.Name,
				NodeType: node.TypeTag,
				Index:    i,
				Reason:   fmt.Sprintf("nearest upstream node that did not finish successfully (status %s)", node.Status),
			}
		}
	}

	return Origin{
		NodeName: failing.Name,
		NodeType: failing.TypeTag,
		Index:    failIdx,
		Reason:   "no upstream node explains the defect; it is local to the failing node",
	}
}
