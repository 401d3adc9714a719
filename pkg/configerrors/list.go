package configerrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

// List is the aggregate failure returned when one or more fields of a document
// are invalid. Entries keep the order in which they were detected.
type List struct {
	errs []*Error
}

// Collect flattens an error accumulated with multierr.Append into a List.
// Entries that are not *Error are wrapped as ErrorTypeInternal.
// Returns nil when err is nil.
func Collect(err error) *List {
	if err == nil {
		return nil
	}
	list := &List{}
	for _, e := range multierr.Errors(err) {
		var nested *List
		if errors.As(e, &nested) {
			list.errs = append(list.errs, nested.errs...)
			continue
		}
		var ce *Error
		if errors.As(e, &ce) {
			list.errs = append(list.errs, ce)
			continue
		}
		list.errs = append(list.errs, Wrap(e, ErrorTypeInternal, "unexpected error"))
	}
	return list
}

// Error renders one line per entry.
func (l *List) Error() string {
	if len(l.errs) == 1 {
		return l.errs[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d configuration errors:", len(l.errs))
	for _, e := range l.errs {
		b.WriteString("\n  - ")
		b.WriteString(e.Error())
	}
	return b.String()
}

// Unwrap exposes the entries to errors.Is and errors.As.
func (l *List) Unwrap() []error {
	out := make([]error, len(l.errs))
	for i, e := range l.errs {
		out[i] = e
	}
	return out
}

// Len returns the number of entries.
func (l *List) Len() int {
	return len(l.errs)
}

// Errors returns a copy of the entries.
func (l *List) Errors() []*Error {
	out := make([]*Error, len(l.errs))
	copy(out, l.errs)
	return out
}

// ByType returns the entries of the given type.
func (l *List) ByType(errType ErrorType) []*Error {
	var out []*Error
	for _, e := range l.errs {
		if e.Type == errType {
			out = append(out, e)
		}
	}
	return out
}

// Fields returns the sorted, de-duplicated set of keys named by any entry.
func (l *List) Fields() []string {
	seen := make(map[string]struct{})
	for _, e := range l.errs {
		for _, f := range e.Fields {
			seen[f] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
