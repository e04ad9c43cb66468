package hcl_adapter

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// SensitiveMark is the cty mark carried by secret values.
const SensitiveMark = "sensitive"

// Converter is the HCL-specific implementation of config.Converter.
type Converter struct{}

// NewConverter creates a new HCL converter.
func NewConverter() *Converter {
	return &Converter{}
}

// Sensitive returns v as a string value marked sensitive.
func (c *Converter) Sensitive(v string) cty.Value {
	return cty.StringVal(v).Mark(SensitiveMark)
}

// DecodeArguments evaluates args and binds them to the `hcl` tagged fields of
// target, which must be a pointer to a struct. Unknown arguments, missing
// required arguments and secret-derived values are rejected.
func (c *Converter) DecodeArguments(args map[string]hcl.Expression, evalCtx *hcl.EvalContext, target any) error {
	fields, err := taggedFields(target)
	if err != nil {
		return err
	}

	var errs []string
	for name := range args {
		if _, ok := fields[name]; !ok {
			errs = append(errs, fmt.Sprintf("unsupported argument '%s'", name))
		}
	}
	for name, f := range fields {
		if f.required {
			if _, ok := args[name]; !ok {
				errs = append(errs, fmt.Sprintf("missing required argument '%s'", name))
			}
		}
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	for _, name := range sortedKeys(args) {
		expr := args[name]
		val, diags := expr.Value(evalCtx)
		if diags.HasErrors() {
			return fmt.Errorf("argument '%s': %w", name, diags)
		}
		if val.ContainsMarked() {
			return fmt.Errorf("argument '%s' must not be derived from a secret; pass secrets through 'env'", name)
		}
		if diags := gohcl.DecodeExpression(hcl.StaticExpr(val, expr.Range()), nil, fields[name].value.Addr().Interface()); diags.HasErrors() {
			return fmt.Errorf("argument '%s': %w", name, diags)
		}
	}
	return nil
}

// EvalStrings evaluates every expression to a string. Null values become the
// empty string.
func (c *Converter) EvalStrings(exprs map[string]hcl.Expression, evalCtx *hcl.EvalContext, allowSensitive bool) (map[string]string, error) {
	out := make(map[string]string, len(exprs))
	for _, name := range sortedKeys(exprs) {
		val, diags := exprs[name].Value(evalCtx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("'%s': %w", name, diags)
		}
		val, marks := val.UnmarkDeep()
		if len(marks) > 0 && !allowSensitive {
			return nil, fmt.Errorf("'%s' must not be derived from a secret", name)
		}
		s, err := toString(val)
		if err != nil {
			return nil, fmt.Errorf("'%s': %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}

// EvalBool evaluates a condition expression.
func (c *Converter) EvalBool(expr hcl.Expression, evalCtx *hcl.EvalContext) (bool, error) {
	if expr == nil {
		return true, nil
	}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return false, diags
	}
	val, _ = val.UnmarkDeep()
	if val.IsNull() {
		return false, fmt.Errorf("condition evaluated to null")
	}
	b, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("condition must be a bool: %w", err)
	}
	if !b.IsKnown() {
		return false, fmt.Errorf("condition is not known")
	}
	return b.True(), nil
}

func toString(val cty.Value) (string, error) {
	if val.IsNull() {
		return "", nil
	}
	if !val.IsKnown() {
		return "", fmt.Errorf("value is not known")
	}
	s, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("expected a string, got %s", val.Type().FriendlyName())
	}
	return s.AsString(), nil
}

type taggedField struct {
	value    reflect.Value
	required bool
}

// taggedFields indexes the `hcl` tagged fields of a struct pointer by
// attribute name.
func taggedFields(target any) (map[string]taggedField, error) {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("decode target must be a pointer to a struct, got %T", target)
	}
	sv := rv.Elem()
	st := sv.Type()
	fields := make(map[string]taggedField, st.NumField())
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		tag, ok := f.Tag.Lookup("hcl")
		if !ok || !f.IsExported() {
			continue
		}
		parts := strings.Split(tag, ",")
		name := parts[0]
		if name == "" {
			continue
		}
		optional := len(parts) > 1 && parts[1] == "optional"
		fields[name] = taggedField{value: sv.Field(i), required: !optional}
	}
	return fields, nil
}

func sortedKeys(m map[string]hcl.Expression) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
