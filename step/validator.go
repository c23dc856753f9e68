package step

import (
	"context"
	"strings"

	"github.com/whitaker-io/chewdata/record"
	"github.com/whitaker-io/chewdata/updater"
)

// Rule is one named entry of a Validator's rule set, per spec.md §4.6: a
// template whose rendered value is interpreted as truthy/falsy, and the
// message to report when it fails.
type Rule struct {
	Pattern string
	Message string
}

// Validator is the validator step of spec.md §4.6: each rule's pattern is
// rendered against the record; a falsy rendering fails the rule. A record
// with any failing rule becomes Err with every failing rule's message
// concatenated; otherwise it is forwarded as Ok.
type Validator struct {
	Common
	Updater *updater.Updater
	Rules   map[string]Rule
}

// falsy values a rendered rule pattern is treated as false for.
var falsyRenderings = map[string]bool{
	"":      true,
	"false": true,
	"0":     true,
}

// Run implements Step.
func (v *Validator) Run(ctx context.Context, in <-chan *record.DataResult, out chan<- *record.DataResult) {
	fanWorkers(ctx, v.concurrency(), in, out, func(res *record.DataResult) *record.DataResult {
		if !v.Type.accepts(res) {
			return res
		}

		input := res.ToRecord()
		stepCtx := v.contextFor(input)

		var failures []string
		for name, rule := range v.Rules {
			rendered, err := v.Updater.Render(rule.Pattern, stepCtx)
			if err != nil {
				failures = append(failures, name+": "+err.Error())
				continue
			}
			if falsyRenderings[strings.ToLower(strings.TrimSpace(rendered))] {
				failures = append(failures, name+": "+rule.Message)
			}
		}

		if len(failures) > 0 {
			result := record.Err(input, record.NewError(record.ErrorKindValidationFailed, "%s", strings.Join(failures, "; ")))
			v.publish(result.Record())
			return result
		}

		v.publish(input)
		return record.Ok(input)
	})
}
