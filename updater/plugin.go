package updater

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/flosch/pongo2/v6"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// CustomFunction is a user-supplied script defining one template function,
// loaded through the teacher's embedded-interpreter plugin mechanism
// (loader.providers.go's yaegiProvider) rather than a compiled Go plugin.
// Functions are registered by calling RegisterCustomFunction from Go; the
// pipeline config loader does not read any custom-function setting.
type CustomFunction struct {
	Name    string
	Payload string
	Symbol  string
}

var (
	customMu  sync.RWMutex
	customFns = map[string]interface{}{}
)

// RegisterCustomFunction evaluates payload with yaegi and binds the
// exported symbol under name, making it callable from templates as
// name(...). It mirrors the teacher's yaegiProvider.Load exactly: the
// payload is evaluated once, the symbol looked up, and its reflect.Value
// converted to a callable interface{}.
func RegisterCustomFunction(fn CustomFunction) error {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return fmt.Errorf("updater: yaegi stdlib: %w", err)
	}

	if _, err := i.Eval(fn.Payload); err != nil {
		return fmt.Errorf("updater: evaluating script: %w", err)
	}

	sym, err := i.Eval(fn.Symbol)
	if err != nil {
		return fmt.Errorf("updater: evaluating symbol: %w", err)
	}
	if sym.Kind() != reflect.Func {
		return fmt.Errorf("updater: symbol %q is not a func", fn.Symbol)
	}

	wrapped := wrapGoFunc(sym)

	customMu.Lock()
	defer customMu.Unlock()
	customFns[fn.Name] = wrapped
	return nil
}

// wrapGoFunc adapts an arbitrary user-defined Go function (loaded
// dynamically, so its exact signature is unknown at compile time) into a
// pongo2-callable func(...*pongo2.Value) *pongo2.Value by unwrapping each
// argument with Interface() and re-wrapping the call's return value.
func wrapGoFunc(sym reflect.Value) func(args ...*pongo2.Value) *pongo2.Value {
	return func(args ...*pongo2.Value) *pongo2.Value {
		in := make([]reflect.Value, len(args))
		for i, a := range args {
			in[i] = reflect.ValueOf(a.Interface())
		}
		out := sym.Call(in)
		if len(out) == 0 {
			return pongo2.AsValue(nil)
		}
		return pongo2.AsValue(out[0].Interface())
	}
}

func customFunctions() map[string]interface{} {
	customMu.RLock()
	defer customMu.RUnlock()
	out := make(map[string]interface{}, len(customFns))
	for k, v := range customFns {
		out[k] = v
	}
	return out
}
