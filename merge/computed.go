package merge

import (
	"fmt"
	"sort"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ComputedField is an expression evaluated per record. The expression sees
// `record` (header → value), `now` (time.Time), `date` (today formatted for
// the active locale) and `locale`.
type ComputedField struct {
	Name       string
	Expression string
	program    *vm.Program
}

// CompileComputedFields compiles expressions keyed by field name. Fields are
// returned sorted by name so evaluation order is stable.
func CompileComputedFields(exprs map[string]string) ([]ComputedField, error) {
	names := make([]string, 0, len(exprs))
	for name := range exprs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ComputedField, 0, len(names))
	for _, name := range names {
		code := exprs[name]
		program, err := expr.Compile(code, expr.Env(computedEnv(Record{}, time.Time{}, "")), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, NewError(KindValidation, fmt.Sprintf("computed field %q: invalid expression", name), err)
		}
		out = append(out, ComputedField{Name: name, Expression: code, program: program})
	}
	return out, nil
}

// Eval evaluates the field for rec.
func (f ComputedField) Eval(rec Record, now time.Time, locale string) (string, error) {
	if f.program == nil {
		return "", NewError(KindInternal, fmt.Sprintf("computed field %q is not compiled", f.Name), nil)
	}
	result, err := expr.Run(f.program, computedEnv(rec, now, locale))
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	if str, ok := result.(string); ok {
		return str, nil
	}
	return stringifyCell(result), nil
}

func computedEnv(rec Record, now time.Time, locale string) map[string]any {
	values := rec.Map()
	if values == nil {
		values = map[string]string{}
	}
	return map[string]any{
		"record": values,
		"now":    now,
		"date":   FormatDate(now, locale),
		"locale": locale,
	}
}
