package signature

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ohler55/ojg/jp"
)

// fieldPathRe tokenizes an expression into dotted field paths. Bare
// identifiers count too so that "amount * 2" yields "amount".
var fieldPathRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*`)

// expressionKeywords are tokens that look like field paths but are language
// literals or operators in disguise. They never resolve against a sample.
var expressionKeywords = map[string]struct{}{
	"true": {}, "false": {}, "null": {}, "undefined": {},
	"typeof": {}, "new": {}, "in": {}, "return": {}, "not": {},
}

// normalizeExpression strips template wrapping and engine prefixes
// ("{{ $json.body.email }}" and "=$json.body.email" both reduce to
// "body.email") so the remainder parses as a plain field path.
func normalizeExpression(expr string) string {
	s := strings.TrimSpace(expr)
	s = strings.TrimPrefix(s, "{{")
	s = strings.TrimSuffix(s, "}}")
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "=")
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"$json.", "$item.", "$."} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	s = strings.TrimPrefix(s, "$")
	return strings.TrimSpace(s)
}

// extractFieldPaths pulls the distinct field paths referenced by an
// expression, in order of first appearance. A compound expression like
// "body.total * items.count" yields both operand paths.
func extractFieldPaths(expr string) []string {
	normalized := normalizeExpression(expr)
	if normalized == "" {
		return nil
	}
	var paths []string
	seen := make(map[string]struct{})
	for _, tok := range fieldPathRe.FindAllString(normalized, -1) {
		if _, skip := expressionKeywords[strings.ToLower(tok)]; skip {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		paths = append(paths, tok)
	}
	return paths
}

// fieldProbe resolves one parsed field path against sampled output records.
type fieldProbe struct {
	path string
	expr jp.Expr
}

// compileProbes parses each path once. Paths that do not parse are dropped;
// a predicate facing an unparseable expression reports no hit, never an
// error.
func compileProbes(paths []string) []fieldProbe {
	probes := make([]fieldProbe, 0, len(paths))
	for _, p := range paths {
		expr, err := jp.ParseString(p)
		if err != nil {
			continue
		}
		probes = append(probes, fieldProbe{path: p, expr: expr})
	}
	return probes
}

// resolve looks the probe's path up in a single output record. A JSON null
// counts as absent: an expression dereferencing a null field fails the same
// way as one dereferencing a missing field.
func (fp fieldProbe) resolve(record map[string]interface{}) (interface{}, bool) {
	results := fp.expr.Get(record)
	if len(results) == 0 || results[0] == nil {
		return nil, false
	}
	return results[0], true
}

// jsonTypeName names the JSON type of a decoded value for divergence
// comparisons. Numeric Go widths all collapse to "number".
func jsonTypeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "number"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
