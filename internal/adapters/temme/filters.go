package temme

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/corey/temmekit/internal/ports"
)

type filterFunc func(v any) (any, error)

var builtinFilters = map[string]filterFunc{
	"trim":   stringFilter("trim", strings.TrimSpace),
	"lower":  stringFilter("lower", strings.ToLower),
	"upper":  stringFilter("upper", strings.ToUpper),
	"squash": stringFilter("squash", func(s string) string { return strings.Join(strings.Fields(s), " ") }),
	"Number": toNumber,
}

func stringFilter(name string, fn func(string) string) filterFunc {
	return func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, &ports.EvaluationError{Message: fmt.Sprintf("filter %s expects a string, got %T", name, v)}
		}
		return fn(s), nil
	}
}

func toNumber(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil, &ports.EvaluationError{Message: fmt.Sprintf("Number: cannot convert %q", n)}
		}
		return f, nil
	default:
		return nil, &ports.EvaluationError{Message: fmt.Sprintf("Number: cannot convert %T", v)}
	}
}

func applyFilters(v any, filters []Filter) (any, error) {
	for _, f := range filters {
		fn, ok := builtinFilters[f.Name]
		if !ok {
			return nil, &ports.EvaluationError{Message: fmt.Sprintf("unknown filter %q", f.Name)}
		}
		out, err := fn(v)
		if err != nil {
			return nil, err
		}
		v = out
	}
	return v, nil
}
