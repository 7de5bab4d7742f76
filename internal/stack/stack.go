// Package stack captures and formats call stacks attached to errors.
package stack

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Capture attaches the caller's stack to err unless err already carries one.
func Capture(err error) error {
	if err == nil {
		return nil
	}
	var st stackTracer
	if errors.As(err, &st) {
		return err
	}
	return errors.WithStack(err)
}

// String renders err as its message followed by one "  at" line per frame.
func String(err error) string {
	if err == nil {
		return ""
	}
	buf := bytes.NewBufferString(err.Error())
	var st stackTracer
	if !errors.As(err, &st) {
		return buf.String()
	}
	for _, f := range st.StackTrace() {
		fmt.Fprintf(buf, "\n  at %n @ %s:%d", f, f, f)
	}
	return buf.String()
}
