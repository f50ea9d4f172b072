// Error wrapper which remembers where it is wrapped.
//
// Usage:
//
//	if err := registry.SetTag(ctx, name, version, k, v); err != nil {
//		return xe.WrapWithNote("set ranking tag", err)
//	}
//
// Messages of wrapped errors are chained with "<-", innermost last:
//
//	@ pkg.Func "file.go" l12 (note) <- @ pkg.Inner "inner.go" l34 <- root cause
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

type ErrWithCaller struct {
	frame runtime.Frame
	note  string
	err   error
}

func (e *ErrWithCaller) File() string {
	return e.frame.File
}

func (e *ErrWithCaller) Line() int {
	return e.frame.Line
}

func (e *ErrWithCaller) Func() string {
	return e.frame.Function
}

func (e *ErrWithCaller) Note() string {
	return e.note
}

func (e *ErrWithCaller) Error() string {
	where := fmt.Sprintf(`@ %s "%s" l%d`, e.Func(), e.File(), e.Line())
	if e.note != "" {
		where += " (" + e.note + ")"
	}
	return where + " <- " + e.err.Error()
}

func (e *ErrWithCaller) Unwrap() error {
	return e.err
}

// New creates an error with message, annotated with the caller.
func New(text string) error {
	return at(2, "", errors.New(text))
}

// Wrap annotates err with the caller. Wrap(nil) is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return at(2, "", err)
}

// WrapWithNote is Wrap with a short note on what was being done.
func WrapWithNote(note string, err error) error {
	if err == nil {
		return nil
	}
	return at(2, note, err)
}

// WrapAsOuter annotates err with the caller `depth` frames above the caller of this.
//
// Helpers which build errors for their callers pass depth=1.
func WrapAsOuter(err error, depth int) error {
	if err == nil {
		return nil
	}
	return at(depth+2, "", err)
}

func at(skip int, note string, err error) error {
	pcs := make([]uintptr, 1)
	frame := runtime.Frame{Function: "(unknown func)", File: "?", Line: -1}
	if n := runtime.Callers(skip+1, pcs); n > 0 {
		f, _ := runtime.CallersFrames(pcs[:n]).Next()
		if f.Function != "" {
			frame = f
		}
	}
	return &ErrWithCaller{frame: frame, note: note, err: err}
}
