package core

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// TraceIDHeader is the response header through which a backend reports the
// trace id of the request it served.
const TraceIDHeader = "trace-id"

// TraceSource exposes the distributed trace active for a request, if any.
type TraceSource interface {
	ActiveTraceID(ctx context.Context) (string, bool)
}

type traceIDKey struct{}

// ContextTraceSource reads trace ids stored in contexts by WithTraceID and
// WithNewTraceID.
type ContextTraceSource struct{}

func (ContextTraceSource) ActiveTraceID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(traceIDKey{}).(string)
	return id, ok && id != ""
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, id)
}

// WithNewTraceID starts a new trace on ctx.
func WithNewTraceID(ctx context.Context) (context.Context, string) {
	id := NewTraceID()
	return WithTraceID(ctx, id), id
}

// NewTraceID returns 32 random hex digits.
func NewTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
