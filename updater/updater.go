// Package updater implements the template engine (C5) chewdata evaluates
// connector paths, writer request bodies, and transformer actions through.
package updater

import (
	"fmt"
	"sync"

	"github.com/flosch/pongo2/v6"
	"github.com/whitaker-io/chewdata/record"
)

// Updater renders pongo2 templates against a record.Context's bindings.
// One Updater is built per step and reused across records: it caches each
// compiled template by its source string, so repeated Render calls with the
// same template string on the same Updater do not re-parse it.
type Updater struct {
	set *pongo2.TemplateSet

	mu    sync.Mutex
	cache map[string]*pongo2.Template
}

// New returns an Updater that compiles templates on its own pongo2
// TemplateSet. chewdata's filters are registered once per process on
// pongo2's package-global filter table (see registerFilters) and shared by
// every Updater; its functions are bound into the context of each Render
// call.
func New() *Updater {
	set := pongo2.NewSet("chewdata", pongo2.DefaultLoader)
	u := &Updater{set: set, cache: map[string]*pongo2.Template{}}
	registerFilters(set)
	return u
}

// Render evaluates template against ctx's bindings and returns the
// rendered string. A template referencing throw(...) returns the
// ErrorKindTemplateFailed error that function produces.
func (u *Updater) Render(template string, ctx *record.Context) (string, error) {
	tpl, err := u.compile(template)
	if err != nil {
		return "", record.NewError(record.ErrorKindTemplateFailed, "updater: parse: %v", err)
	}

	bindings := pongo2.Context(ctx.Bindings())
	bindings["now"] = nowFunc
	bindings["throw"] = throwFunc
	bindings["uuid_v4"] = uuidV4Func
	for name, fn := range fakeFunctions() {
		bindings[name] = fn
	}
	for name, fn := range customFunctions() {
		bindings[name] = fn
	}

	out, err := u.execute(tpl, bindings)
	if err != nil {
		return "", err
	}
	return out, nil
}

// execute runs tpl.Execute, recovering a throwFunc panic into the
// ErrorKindTemplateFailed DataResult error spec.md §4.5 requires `throw` to
// produce, rather than letting it unwind as a Go panic.
func (u *Updater) execute(tpl *pongo2.Template, bindings pongo2.Context) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			if te, ok := r.(*throwError); ok {
				err = record.NewError(record.ErrorKindTemplateFailed, "%s", te.msg)
				return
			}
			panic(r)
		}
	}()
	out, execErr := tpl.Execute(bindings)
	if execErr != nil {
		return "", record.NewError(record.ErrorKindTemplateFailed, "updater: render: %v", execErr)
	}
	return out, nil
}

func (u *Updater) compile(template string) (*pongo2.Template, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if tpl, ok := u.cache[template]; ok {
		return tpl, nil
	}
	tpl, err := u.set.FromString(template)
	if err != nil {
		return nil, err
	}
	u.cache[template] = tpl
	return tpl, nil
}

// IsVariable reports whether template contains any `{{` or `{%` directive,
// the cheap syntactic test connectors use to implement IsVariable() without
// compiling the template.
func IsVariable(template string) bool {
	for i := 0; i+1 < len(template); i++ {
		if template[i] == '{' && (template[i+1] == '{' || template[i+1] == '%') {
			return true
		}
	}
	return false
}

type throwError struct{ msg string }

func (e *throwError) Error() string { return e.msg }

func throwFunc(message *pongo2.Value) *pongo2.Value {
	panic(&throwError{msg: fmt.Sprint(message.Interface())})
}
