package agent

import (
	"context"
	"errors"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/leofalp/mule/providers/ai"
)

// errNilInvocation stands in for a dependency entry that was never started.
var errNilInvocation = errors.New("agent: nil dependency")

// Placeholder is the slot FormatLast fills with dependency responses.
const Placeholder = "{}"

// Resolved holds the outcome of every dependency of an invocation.
type Resolved struct {
	names     []string
	histories map[string]ai.ChatHistory
	errs      map[string]error
}

// resolve awaits every dependency concurrently. Dependency failures are
// recorded, not returned; the only error is ctx ending first.
func resolve(ctx context.Context, deps Deps) (*Resolved, error) {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	slices.Sort(names)

	histories := make([]ai.ChatHistory, len(names))
	errs := make([]error, len(names))

	var g errgroup.Group
	for i, name := range names {
		inv := deps[name]
		if inv == nil {
			errs[i] = errNilInvocation
			continue
		}
		g.Go(func() error {
			history, err := inv.Await(ctx)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			histories[i], errs[i] = history, err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r := &Resolved{
		names:     names,
		histories: make(map[string]ai.ChatHistory, len(names)),
		errs:      make(map[string]error, len(names)),
	}
	for i, name := range names {
		r.histories[name] = histories[i]
		if errs[i] != nil {
			r.errs[name] = errs[i]
		}
	}
	return r, nil
}

// Names returns the dependency names in ascending order.
func (r *Resolved) Names() []string {
	if r == nil {
		return nil
	}
	return slices.Clone(r.names)
}

// Len returns the number of dependencies.
func (r *Resolved) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}

// History returns the history produced by the named dependency. Failed
// dependencies return whatever partial history they produced.
func (r *Resolved) History(name string) ai.ChatHistory {
	if r == nil {
		return nil
	}
	return r.histories[name]
}

// Err returns the failure of the named dependency, or nil.
func (r *Resolved) Err(name string) error {
	if r == nil {
		return nil
	}
	return r.errs[name]
}

// Failed reports whether the named dependency failed or is unknown.
func (r *Resolved) Failed(name string) bool {
	if r == nil {
		return true
	}
	if _, ok := r.histories[name]; !ok {
		return true
	}
	return r.errs[name] != nil
}

// FailedCount returns the number of failed dependencies.
func (r *Resolved) FailedCount() int {
	if r == nil {
		return 0
	}
	return len(r.errs)
}

// LastContent returns the response that ends the named dependency history.
// It returns "" for failed or unknown dependencies.
func (r *Resolved) LastContent(name string) string {
	if r.Failed(name) {
		return ""
	}
	content, _ := r.histories[name].Response()
	return content
}

// ConcatHistories returns every dependency history joined in name order.
func (r *Resolved) ConcatHistories() ai.ChatHistory {
	var out ai.ChatHistory
	for _, name := range r.Names() {
		out = out.Append(r.histories[name]...)
	}
	return out
}

// FormatLast fills each placeholder of template, left to right, with the
// last response of the given dependencies. With no names, all dependencies
// are used in name order. Surplus placeholders are left untouched.
func (r *Resolved) FormatLast(template string, names ...string) string {
	if len(names) == 0 {
		names = r.Names()
	}

	var b strings.Builder
	rest := template
	for _, name := range names {
		idx := strings.Index(rest, Placeholder)
		if idx < 0 {
			break
		}
		b.WriteString(rest[:idx])
		b.WriteString(r.LastContent(name))
		rest = rest[idx+len(Placeholder):]
	}
	b.WriteString(rest)
	return b.String()
}

// Notes joins the responses of histories that end in a non-empty model
// response, skipping the rest.
func Notes(histories []ai.ChatHistory, sep string) string {
	notes := make([]string, 0, len(histories))
	for _, history := range histories {
		if content, ok := history.Response(); ok && content != "" {
			notes = append(notes, content)
		}
	}
	return strings.Join(notes, sep)
}
