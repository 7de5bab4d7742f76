package core

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/abema/netwatch/host"
	"github.com/abema/netwatch/internal/url"
)

// Mechanism is a request-issuing entry point of the host that can be wrapped.
type Mechanism interface {
	// Available reports whether the host exposes the mechanism.
	Available() bool
	// Intercept replaces the entry point with one reporting to tracker.
	Intercept(tracker *Tracker)
}

type RequestObservables struct {
	Start    *Observable[RequestStartEvent]
	Complete *Observable[RequestCompleteEvent]
}

type installState int

const (
	notInstalled installState = iota
	installed
)

// Interceptor wraps request mechanisms so that every request issued through
// them publishes one start event and at most one complete event.
type Interceptor struct {
	config     *Config
	clock      host.Clock
	monitoring *Monitoring

	mutex       sync.Mutex
	state       installState
	observables *RequestObservables
}

func NewInterceptor(config *Config, clock host.Clock, monitoring *Monitoring) *Interceptor {
	if config == nil {
		config = NewConfig()
	}
	if clock == nil {
		clock = host.NewClock()
	}
	return &Interceptor{
		config:     config,
		clock:      clock,
		monitoring: monitoring,
	}
}

// Install wraps each available mechanism. Only the first call installs
// anything; every call returns the same observables.
func (i *Interceptor) Install(mechanisms ...Mechanism) *RequestObservables {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	if i.observables == nil {
		i.observables = &RequestObservables{
			Start:    NewObservable[RequestStartEvent](),
			Complete: NewObservable[RequestCompleteEvent](),
		}
	}
	if i.state == installed {
		return i.observables
	}
	tracker := &Tracker{
		observables: i.observables,
		clock:       i.clock,
		monitoring:  i.monitoring,
		traceSource: i.config.TraceSource,
		normalize:   i.config.NormalizeURL,
	}
	for _, mechanism := range i.mechanisms(mechanisms) {
		mechanism.Intercept(tracker)
	}
	i.state = installed
	return i.observables
}

func (i *Interceptor) mechanisms(mechanisms []Mechanism) []Mechanism {
	available := make([]Mechanism, 0, len(mechanisms))
	for _, mechanism := range mechanisms {
		if mechanism != nil && mechanism.Available() {
			available = append(available, mechanism)
		}
	}
	return available
}

var (
	interceptorsMutex sync.Mutex
	interceptors      = make(map[*host.Window]*Interceptor)
)

// StartRequestCollection installs the interceptor of w on both mechanisms.
// The interceptor is created on first use and shared by later calls, which
// receive the same observables. It stays registered until
// ReleaseRequestCollection is called for w.
func StartRequestCollection(w *host.Window, config *Config, monitoring *Monitoring) *RequestObservables {
	interceptorsMutex.Lock()
	interceptor, ok := interceptors[w]
	if !ok {
		interceptor = NewInterceptor(config, w.Clock(), monitoring)
		interceptors[w] = interceptor
	}
	interceptorsMutex.Unlock()
	return interceptor.Install(XHRMechanism(w), FetchMechanism(w))
}

// ReleaseRequestCollection forgets the interceptor of w. The mechanisms of w
// stay wrapped, so it is meant for windows that are no longer used.
func ReleaseRequestCollection(w *host.Window) {
	interceptorsMutex.Lock()
	defer interceptorsMutex.Unlock()
	delete(interceptors, w)
}

// Tracker is handed to mechanisms to register their requests.
type Tracker struct {
	observables *RequestObservables
	clock       host.Clock
	monitoring  *Monitoring
	traceSource TraceSource
	normalize   func(u string) string
}

// Start allocates the identity of a new request and publishes its start event.
func (t *Tracker) Start() *PendingRequest {
	p := &PendingRequest{
		tracker:   t,
		ID:        nextRequestID(),
		StartTime: t.clock.Now(),
	}
	t.monitoring.Run(func() {
		t.observables.Start.Notify(RequestStartEvent{RequestID: p.ID})
	})
	return p
}

func (t *Tracker) traceID(ctx context.Context) string {
	if t.traceSource == nil {
		return ""
	}
	id, _ := t.traceSource.ActiveTraceID(ctx)
	return id
}

func (t *Tracker) normalizeURL(w *host.Window, u string) string {
	if t.normalize != nil {
		return t.normalize(u)
	}
	return url.Normalize(w.Location(), u)
}

type requestState int32

const (
	requestPending requestState = iota
	requestCompleted
)

// PendingRequest is a started request waiting for its first completion signal.
type PendingRequest struct {
	ID        int64
	StartTime float64

	tracker *Tracker
	state   int32
}

// Complete publishes the event returned by build unless the request has
// already completed. RequestID, StartTime and Duration are filled in.
func (p *PendingRequest) Complete(build func() RequestCompleteEvent) bool {
	if !p.transition() {
		return false
	}
	duration := p.tracker.clock.Now() - p.StartTime
	event := build()
	event.RequestID = p.ID
	event.StartTime = p.StartTime
	event.Duration = duration
	p.tracker.observables.Complete.Notify(event)
	return true
}

// Abandon completes the request without publishing anything.
func (p *PendingRequest) Abandon() {
	p.transition()
}

func (p *PendingRequest) transition() bool {
	return atomic.CompareAndSwapInt32(&p.state, int32(requestPending), int32(requestCompleted))
}
