package runtime

import (
	"context"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"

	errs "github.com/exclave-io/exclave/internal/runtime/errors"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// router maps action names to the exported methods of a bound service
// implementation, so every public method is an addressable action keyed
// by its own name. Methods promoted from the embedded Service base are
// excluded; actions address business logic, not runtime plumbing.
type router struct {
	target  reflect.Value
	methods map[string]reflect.Value
}

// baseMethodNames is the set of exported methods every service inherits
// from the embedded base. Computed once.
var baseMethodNames = func() map[string]bool {
	names := make(map[string]bool)
	t := reflect.TypeOf((*Service)(nil))
	for i := 0; i < t.NumMethod(); i++ {
		names[t.Method(i).Name] = true
	}
	return names
}()

func newRouter(impl any) *router {
	target := reflect.ValueOf(impl)
	t := target.Type()

	methods := make(map[string]reflect.Value)
	for i := 0; i < t.NumMethod(); i++ {
		name := t.Method(i).Name
		if baseMethodNames[name] {
			continue
		}
		methods[name] = target.Method(i)
	}

	return &router{target: target, methods: methods}
}

// lookup finds the method for an action. The exact exported name matches
// first; a lower-camel action like "addItem" falls back to its exported
// spelling so wire actions from other runtimes dispatch too.
func (r *router) lookup(action string) (reflect.Value, bool) {
	if m, ok := r.methods[action]; ok {
		return m, true
	}
	if m, ok := r.methods[exportedName(action)]; ok {
		return m, true
	}
	return reflect.Value{}, false
}

// Dispatch invokes the method named by action with positional args. A
// method may optionally take a context.Context first parameter, and may
// return nothing, a value, an error, or a value and an error. Panics
// inside the method are returned as errors so one bad call cannot take
// down the dispatch loop.
func (r *router) Dispatch(ctx context.Context, action string, args []any) (result any, err error) {
	method, ok := r.lookup(action)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrMethodNotFound, action)
	}

	in, err := buildArgs(ctx, method.Type(), action, args)
	if err != nil {
		return nil, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("panic in action %q: %v", action, rec)
		}
	}()

	return collectResults(action, method.Call(in))
}

// Has reports whether an action resolves to a method.
func (r *router) Has(action string) bool {
	_, ok := r.lookup(action)
	return ok
}

// Actions returns the addressable action names.
func (r *router) Actions() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	return names
}

func buildArgs(ctx context.Context, mt reflect.Type, action string, args []any) ([]reflect.Value, error) {
	in := make([]reflect.Value, 0, mt.NumIn())
	next := 0

	if mt.NumIn() > 0 && mt.In(0) == contextType {
		in = append(in, reflect.ValueOf(ctx))
		next = 1
	}

	want := mt.NumIn() - next
	if mt.IsVariadic() {
		if len(args) < want-1 {
			return nil, fmt.Errorf("action %q wants at least %d args, got %d", action, want-1, len(args))
		}
	} else if len(args) != want {
		return nil, fmt.Errorf("action %q wants %d args, got %d", action, want, len(args))
	}

	for i, arg := range args {
		paramIdx := next + i
		var paramType reflect.Type
		if mt.IsVariadic() && paramIdx >= mt.NumIn()-1 {
			paramType = mt.In(mt.NumIn() - 1).Elem()
		} else {
			paramType = mt.In(paramIdx)
		}

		value, err := convertArg(arg, paramType)
		if err != nil {
			return nil, fmt.Errorf("action %q arg %d: %w", action, i, err)
		}
		in = append(in, value)
	}

	return in, nil
}

// convertArg adapts a decoded wire value to a parameter type. The codec
// normalizes numbers to int64/float64 and sequences to []any, so exact
// assignability is the exception rather than the rule.
func convertArg(arg any, paramType reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(paramType), nil
	}

	value := reflect.ValueOf(arg)
	if value.Type().AssignableTo(paramType) {
		return value, nil
	}
	if value.Type().ConvertibleTo(paramType) && convertible(value.Type(), paramType) {
		return value.Convert(paramType), nil
	}

	if paramType.Kind() == reflect.Slice {
		if items, ok := arg.([]any); ok {
			out := reflect.MakeSlice(paramType, len(items), len(items))
			for i, item := range items {
				elem, err := convertArg(item, paramType.Elem())
				if err != nil {
					return reflect.Value{}, err
				}
				out.Index(i).Set(elem)
			}
			return out, nil
		}
	}

	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", arg, paramType)
}

// convertible limits reflect conversions to the ones that keep wire
// values meaningful: numeric widening or narrowing. String conversions
// like int→string produce runes, not decimal text, so they are refused.
func convertible(from, to reflect.Type) bool {
	return isNumeric(from.Kind()) && isNumeric(to.Kind())
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func collectResults(action string, out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if out[0].Type().Implements(errorType) {
			return nil, asError(out[0])
		}
		return out[0].Interface(), nil
	case 2:
		if !out[1].Type().Implements(errorType) {
			return nil, fmt.Errorf("action %q has unsupported signature: second result must be error", action)
		}
		return out[0].Interface(), asError(out[1])
	default:
		return nil, fmt.Errorf("action %q has unsupported signature: too many results", action)
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

// exportedName upper-cases the first rune of an action name.
func exportedName(action string) string {
	r, size := utf8.DecodeRuneInString(action)
	if r == utf8.RuneError {
		return action
	}
	return string(unicode.ToUpper(r)) + action[size:]
}
