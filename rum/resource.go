// Package rum turns intercepted requests and timing records into resource
// records.
package rum

import (
	"time"

	"github.com/abema/netwatch/core"
	"github.com/abema/netwatch/host"
)

type Resource struct {
	Kind      core.ResourceKind           `json:"type"`
	URL       string                      `json:"url"`
	Method    string                      `json:"method,omitempty"`
	Status    int                         `json:"statusCode,omitempty"`
	RequestID int64                       `json:"requestId,omitempty"`
	TraceID   string                      `json:"traceId,omitempty"`
	StartTime time.Duration               `json:"startTime"`
	Duration  time.Duration               `json:"duration"`
	Size      *int64                      `json:"size,omitempty"`
	Details   *core.ResourceTimingDetails `json:"details,omitempty"`
	// Tags is the build environment of the agent. It is shared between
	// resources and must not be modified.
	Tags core.Values `json:"tags,omitempty"`
	// Timing is the record the resource was built from or matched with.
	Timing *host.TimingRecord `json:"-"`
}

type OnResourceHandler func(resource *Resource)

func MergeOnResourceHandlers(handlers ...OnResourceHandler) OnResourceHandler {
	return func(resource *Resource) {
		for _, handler := range handlers {
			if handler != nil {
				handler(resource)
			}
		}
	}
}

// IsValidResource reports whether u is collected. Requests of the agent to
// its own intake endpoints are not.
func IsValidResource(u string, config *core.Config) bool {
	return u != "" && !config.IsIntakeRequest(u)
}

func fromRequest(req *core.RequestCompleteEvent, rec *host.TimingRecord) *Resource {
	resource := &Resource{
		Kind:      req.Type.Kind(),
		URL:       req.URL,
		Method:    req.Method,
		Status:    req.Status,
		RequestID: req.RequestID,
		TraceID:   req.TraceID,
		StartTime: core.MsToNs(req.StartTime),
		Duration:  core.MsToNs(req.Duration),
	}
	if rec != nil {
		resource.withTiming(rec)
	}
	return resource
}

func fromTiming(rec *host.TimingRecord, reporter core.MessageReporter) *Resource {
	resource := &Resource{
		Kind: core.ComputeResourceKind(rec, reporter),
		URL:  rec.Name,
	}
	resource.withTiming(rec)
	return resource
}

func (r *Resource) withTiming(rec *host.TimingRecord) {
	r.Timing = rec
	r.StartTime = core.MsToNs(rec.StartTime)
	r.Duration = core.ComputePerformanceResourceDuration(rec)
	r.Details = core.ComputePerformanceResourceDetails(rec)
	if size, ok := core.ComputeSize(rec); ok {
		r.Size = &size
	}
}
