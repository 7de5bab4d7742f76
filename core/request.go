package core

import (
	"sync/atomic"

	"github.com/abema/netwatch/host"
)

type RequestType int

const (
	RequestTypeFetch RequestType = iota
	RequestTypeXHR
)

func (t RequestType) String() string {
	switch t {
	case RequestTypeFetch:
		return "fetch"
	case RequestTypeXHR:
		return "xhr"
	}
	return "<Unknown>"
}

func (t RequestType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Kind maps the request type onto the matching resource kind.
func (t RequestType) Kind() ResourceKind {
	if t == RequestTypeXHR {
		return ResourceXHR
	}
	return ResourceFetch
}

type RequestStartEvent struct {
	RequestID int64 `json:"requestId"`
}

type RequestCompleteEvent struct {
	RequestID    int64             `json:"requestId"`
	Type         RequestType       `json:"type"`
	Method       string            `json:"method"`
	URL          string            `json:"url"`
	Status       int               `json:"status"`
	Response     string            `json:"response,omitempty"`
	ResponseType host.ResponseType `json:"responseType,omitempty"`
	// StartTime and Duration are in milliseconds on the window clock.
	StartTime float64 `json:"startTime"`
	Duration  float64 `json:"duration"`
	TraceID   string  `json:"traceId,omitempty"`
}

// IsRejected reports whether the request failed before any HTTP status was
// received. Opaque responses have status 0 by construction and do not count.
func IsRejected(req *RequestCompleteEvent) bool {
	return req.Status == 0 && req.ResponseType != host.ResponseOpaque
}

func IsServerError(req *RequestCompleteEvent) bool {
	return req.Status >= 500
}

var lastRequestID int64

// nextRequestID returns process-wide unique, strictly increasing ids starting at 1.
func nextRequestID() int64 {
	return atomic.AddInt64(&lastRequestID, 1)
}
