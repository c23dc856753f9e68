package record

// PaginatorState is the `{skip, limit, cursor, count}` view a Context
// exposes while a reader is enumerating a paginated source, per spec.md §3.
type PaginatorState struct {
	Skip   int
	Limit  int
	Cursor string
	Count  int
}

// Context is the per-record PipelineContext of spec.md §3: a lazily
// materialized accessor mapping exposing the record entering the current
// step, the record the step is accumulating, connector-supplied metadata,
// the last record produced by each named upstream step, paginator state
// during source enumeration, and any referentials bound by name.
//
// Context is read by the updater's template engine; nothing but the
// updater and the step implementations that build a Context should ever
// construct one directly.
type Context struct {
	input       *Record
	output      *Record
	metadata    *Record
	steps       map[string]*Record
	paginator   *PaginatorState
	refs        map[string]*Record
	materialize map[string]func() *Record
}

// NewContext builds a Context for a single record's traversal of a step.
// input is the record the step received; it is never mutated. Additional
// referentials and step-output bindings are layered on with WithRef and
// WithStepOutput.
func NewContext(input *Record) *Context {
	return &Context{
		input:  input,
		output: input.Clone(),
		steps:  map[string]*Record{},
		refs:   map[string]*Record{},
	}
}

// WithMetadata attaches connector-supplied metadata (mime type, subtype,
// path, headers) to the Context.
func (c *Context) WithMetadata(m *Record) *Context {
	c.metadata = m
	return c
}

// WithPaginator attaches the current paginator enumeration state.
func (c *Context) WithPaginator(p *PaginatorState) *Context {
	c.paginator = p
	return c
}

// WithStepOutput records the last Record a named upstream step produced,
// addressable in templates as `steps.<alias>`.
func (c *Context) WithStepOutput(alias string, r *Record) *Context {
	c.steps[alias] = r
	return c
}

// WithRef binds a materialized referential dataset under the given name.
func (c *Context) WithRef(name string, r *Record) *Context {
	c.refs[name] = r
	return c
}

// WithLazyRef registers a referential to be materialized on first access
// rather than eagerly, letting a step build every Context for a batch
// before any referential connector has actually been fetched.
func (c *Context) WithLazyRef(name string, materialize func() *Record) *Context {
	if c.materialize == nil {
		c.materialize = map[string]func() *Record{}
	}
	c.materialize[name] = materialize
	return c
}

// Input returns the record that entered the current step.
func (c *Context) Input() *Record { return c.input }

// Output returns the record the current step is accumulating. Actions
// mutate this record in place via Record.Set/MergeIn.
func (c *Context) Output() *Record { return c.output }

// SetOutput replaces the accumulated output record, used by actions whose
// pattern targets the document root ("/").
func (c *Context) SetOutput(r *Record) { c.output = r }

// Metadata returns the connector-supplied metadata record.
func (c *Context) Metadata() *Record { return c.metadata }

// Paginator returns the current paginator enumeration state, or nil when
// the step is not a reader mid-enumeration.
func (c *Context) Paginator() *PaginatorState { return c.paginator }

// StepOutput returns the last record a named upstream step produced.
func (c *Context) StepOutput(alias string) *Record { return c.steps[alias] }

// Ref resolves a referential by name, materializing it lazily on first
// access if it was registered with WithLazyRef.
func (c *Context) Ref(name string) *Record {
	if r, ok := c.refs[name]; ok {
		return r
	}
	if fn, ok := c.materialize[name]; ok {
		r := fn()
		c.refs[name] = r
		return r
	}
	return nil
}

// Bindings flattens the Context into the map[string]interface{} shape a
// template engine binds free variables against: input, output, metadata,
// paginator, steps.<alias>, and every referential by name.
func (c *Context) Bindings() map[string]interface{} {
	m := map[string]interface{}{
		"input":  c.input.ToInterface(),
		"output": c.output.ToInterface(),
	}
	if c.metadata != nil {
		m["metadata"] = c.metadata.ToInterface()
	}
	if c.paginator != nil {
		m["paginator"] = map[string]interface{}{
			"skip":   c.paginator.Skip,
			"limit":  c.paginator.Limit,
			"cursor": c.paginator.Cursor,
			"count":  c.paginator.Count,
		}
	}
	steps := map[string]interface{}{}
	for alias, r := range c.steps {
		steps[alias] = r.ToInterface()
	}
	m["steps"] = steps
	for name := range c.materialize {
		if _, ok := c.refs[name]; !ok {
			c.refs[name] = c.materialize[name]()
		}
	}
	for name, r := range c.refs {
		m[name] = r.ToInterface()
	}
	return m
}
