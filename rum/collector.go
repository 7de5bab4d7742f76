package rum

import (
	"fmt"

	"github.com/abema/netwatch/core"
	"github.com/abema/netwatch/host"
)

const (
	networkErrorReport = "NetworkError"
	maxResponseLength  = 512
)

type CollectorConfig struct {
	Core       *core.Config
	Monitoring *core.Monitoring
	// OnResource is called from the goroutine that completed the request or
	// added the timing record. It must be thread-safe.
	OnResource OnResourceHandler
	// OnReport receives network errors: rejected requests and server errors.
	OnReport core.OnReportHandler
}

// Collector builds resources from the requests and timing records of a window.
type Collector struct {
	window     *host.Window
	config     *core.Config
	monitoring *core.Monitoring
	onResource OnResourceHandler
	onReport   core.OnReportHandler
	tags       core.Values
}

// StartResourceCollection subscribes to the completed requests of
// observables and, when enabled, to the timing records of w.
func StartResourceCollection(w *host.Window, observables *core.RequestObservables, config *CollectorConfig) *Collector {
	coreConfig := config.Core
	if coreConfig == nil {
		coreConfig = core.NewConfig()
	}
	c := &Collector{
		window:     w,
		config:     coreConfig,
		monitoring: config.Monitoring,
		onResource: config.OnResource,
		onReport:   config.OnReport,
		tags:       coreConfig.Tags(),
	}
	observables.Complete.Subscribe(func(req core.RequestCompleteEvent) {
		c.monitoring.Run(func() {
			c.handleRequest(&req)
		})
	})
	if coreConfig.TrackResources {
		w.Performance.Observe(func(rec *host.TimingRecord) {
			c.monitoring.Run(func() {
				c.handleTiming(rec)
			})
		})
	}
	return c
}

func (c *Collector) handleRequest(req *core.RequestCompleteEvent) {
	if !IsValidResource(req.URL, c.config) {
		return
	}
	if core.IsRejected(req) || core.IsServerError(req) {
		c.reportNetworkError(req)
	}
	rec := core.MatchRequestTiming(c.window.Performance, req)
	c.emit(fromRequest(req, rec))
}

// handleTiming collects the records which no intercepted request accounts for.
func (c *Collector) handleTiming(rec *host.TimingRecord) {
	switch rec.InitiatorType {
	case host.InitiatorXMLHttpRequest, host.InitiatorFetch:
		return
	}
	if !IsValidResource(rec.Name, c.config) {
		return
	}
	c.emit(fromTiming(rec, c.monitoring))
}

func (c *Collector) emit(resource *Resource) {
	resource.Tags = c.tags
	if c.onResource != nil {
		c.onResource(resource)
	}
}

func (c *Collector) reportNetworkError(req *core.RequestCompleteEvent) {
	if c.onReport == nil {
		return
	}
	label := "Fetch"
	if req.Type == core.RequestTypeXHR {
		label = "XHR"
	}
	values := core.Values{
		"method":    req.Method,
		"url":       req.URL,
		"status":    req.Status,
		"requestId": req.RequestID,
		"response":  truncate(req.Response, maxResponseLength),
	}
	for key, value := range c.tags {
		values[key] = value
	}
	c.onReport(core.Reports{{
		Name:     networkErrorReport,
		Severity: core.Error,
		Message:  fmt.Sprintf("%s error %s %s", label, req.Method, req.URL),
		Values:   values,
	}})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
