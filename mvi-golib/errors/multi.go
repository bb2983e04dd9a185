package errors

import (
	"bytes"
	"fmt"
)

// Errors is a non-empty list of errors. Any non-nil Errors value holds at
// least one underlying error, so callers may compare against nil to check
// for the absence of errors.
type Errors interface {
	error
	// Slice returns a non-empty slice of the underlying errors.
	Slice() []error
	// Len is always > 0.
	Len() int
}

type errorSlice []error

func (m errorSlice) Slice() []error {
	return append([]error(nil), m...)
}

func (m errorSlice) Len() int {
	return len(m)
}

func (m errorSlice) Error() string {
	var b bytes.Buffer
	for i, err := range m {
		if i > 0 {
			fmt.Fprint(&b, "\n")
		}
		fmt.Fprint(&b, err)
	}
	return b.String()
}

// Combine combines errors e & f into a single error. Either may be nil.
func Combine(e, f error) error {
	if e == nil {
		return f
	}
	if f == nil {
		return e
	}
	var out errorSlice
	if es, ok := e.(Errors); ok {
		out = append(out, es.Slice()...)
	} else {
		out = append(out, e)
	}
	if fs, ok := f.(Errors); ok {
		out = append(out, fs.Slice()...)
	} else {
		out = append(out, f)
	}
	return out
}

// Defer is a helper for deferring error-returning cleanup functions.
func Defer(err *error, f func() error) {
	*err = Combine(*err, f())
}
