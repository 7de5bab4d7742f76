package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/abema/netwatch/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/items":
			w.Write([]byte(`{"items":[]}`))
		case "/traced":
			w.Header().Set("Trace-Id", "from-backend")
			w.Write([]byte("traced"))
		case "/error":
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unavailable"))
		case "/slow":
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

type recorder struct {
	observables *RequestObservables

	mutex     sync.Mutex
	starts    []RequestStartEvent
	completes []RequestCompleteEvent
	completed chan RequestCompleteEvent
}

func newRecorder(observables *RequestObservables) *recorder {
	r := &recorder{
		observables: observables,
		completed:   make(chan RequestCompleteEvent, 16),
	}
	observables.Start.Subscribe(func(e RequestStartEvent) {
		r.mutex.Lock()
		defer r.mutex.Unlock()
		r.starts = append(r.starts, e)
	})
	observables.Complete.Subscribe(func(e RequestCompleteEvent) {
		r.mutex.Lock()
		r.completes = append(r.completes, e)
		r.mutex.Unlock()
		r.completed <- e
	})
	return r
}

func (r *recorder) wait(t *testing.T) RequestCompleteEvent {
	t.Helper()
	select {
	case e := <-r.completed:
		return e
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for a complete event")
	}
	return RequestCompleteEvent{}
}

func (r *recorder) counts() (int, int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.starts), len(r.completes)
}

// install returns a window whose mechanisms are intercepted, the recorder of
// its events and a function returning the reports of its monitoring.
func install(t *testing.T, location string, config *Config) (*host.Window, *recorder, func() Reports) {
	w := host.NewWindow(host.NewWindowConfig(location))
	var reports Reports
	var mutex sync.Mutex
	monitoring := NewMonitoring(func(r Reports) {
		mutex.Lock()
		defer mutex.Unlock()
		reports = append(reports, r...)
	})
	interceptor := NewInterceptor(config, w.Clock(), monitoring)
	observables := interceptor.Install(XHRMechanism(w), FetchMechanism(w))
	return w, newRecorder(observables), func() Reports {
		mutex.Lock()
		defer mutex.Unlock()
		return append(Reports(nil), reports...)
	}
}

func TestInterceptor(t *testing.T) {
	t.Run("install is idempotent", func(t *testing.T) {
		server := newTestServer(t)
		w := host.NewWindow(host.NewWindowConfig(server.URL))
		interceptor := NewInterceptor(nil, w.Clock(), nil)
		first := interceptor.Install(XHRMechanism(w), FetchMechanism(w))
		second := interceptor.Install(XHRMechanism(w), FetchMechanism(w))
		assert.Same(t, first, second)

		r := newRecorder(first)
		_, err := w.Fetch(context.Background(), host.NewRequest("", "/items"), nil)
		require.NoError(t, err)
		r.wait(t)

		x := w.NewXMLHttpRequest()
		require.NoError(t, x.Open(http.MethodGet, "/items"))
		require.NoError(t, x.Send(nil))
		r.wait(t)

		starts, completes := r.counts()
		assert.Equal(t, 2, starts)
		assert.Equal(t, 2, completes)
	})

	t.Run("unavailable mechanism", func(t *testing.T) {
		config := host.NewWindowConfig("https://app.example/")
		config.NoFetch = true
		w := host.NewWindow(config)
		interceptor := NewInterceptor(nil, w.Clock(), nil)
		assert.NotPanics(t, func() {
			interceptor.Install(XHRMechanism(w), FetchMechanism(w), nil)
		})
		assert.Nil(t, w.Fetch)
	})

	t.Run("start request collection", func(t *testing.T) {
		w := host.NewWindow(host.NewWindowConfig("https://app.example/"))
		first := StartRequestCollection(w, nil, nil)
		second := StartRequestCollection(w, nil, nil)
		assert.Same(t, first, second)
		other := StartRequestCollection(host.NewWindow(host.NewWindowConfig("https://app.example/")), nil, nil)
		assert.NotSame(t, first, other)
	})

	t.Run("release request collection", func(t *testing.T) {
		w := host.NewWindow(host.NewWindowConfig("https://app.example/"))
		StartRequestCollection(w, nil, nil)
		interceptorsMutex.Lock()
		_, ok := interceptors[w]
		interceptorsMutex.Unlock()
		require.True(t, ok)

		ReleaseRequestCollection(w)
		interceptorsMutex.Lock()
		_, ok = interceptors[w]
		interceptorsMutex.Unlock()
		assert.False(t, ok)
		ReleaseRequestCollection(w)
	})
}

func TestFetchInterception(t *testing.T) {
	server := newTestServer(t)

	t.Run("success", func(t *testing.T) {
		w, r, _ := install(t, server.URL+"/index.html", nil)
		resp, err := w.Fetch(context.Background(), host.NewRequest("", "/items#top"), nil)
		require.NoError(t, err)
		text, err := resp.Text()
		require.NoError(t, err)
		assert.Equal(t, `{"items":[]}`, text, "body stays readable by the caller")

		e := r.wait(t)
		assert.Equal(t, RequestTypeFetch, e.Type)
		assert.Equal(t, http.MethodGet, e.Method)
		assert.Equal(t, server.URL+"/items", e.URL)
		assert.Equal(t, http.StatusOK, e.Status)
		assert.Equal(t, host.ResponseBasic, e.ResponseType)
		assert.Equal(t, `{"items":[]}`, e.Response)
		assert.Greater(t, e.RequestID, int64(0))
		assert.GreaterOrEqual(t, e.Duration, 0.0)
		assert.False(t, IsRejected(&e))

		rec := MatchRequestTiming(w.Performance, &e)
		require.NotNil(t, rec)
		assert.Equal(t, host.InitiatorFetch, rec.InitiatorType)
	})

	t.Run("method precedence", func(t *testing.T) {
		w, r, _ := install(t, server.URL, nil)
		_, err := w.Fetch(context.Background(), host.NewRequest(http.MethodPost, "/items"), nil)
		require.NoError(t, err)
		assert.Equal(t, http.MethodPost, r.wait(t).Method)

		_, err = w.Fetch(context.Background(), host.NewRequest(http.MethodPost, "/items"), &host.RequestInit{Method: http.MethodPut})
		require.NoError(t, err)
		assert.Equal(t, http.MethodPut, r.wait(t).Method)
	})

	t.Run("server error", func(t *testing.T) {
		w, r, _ := install(t, server.URL, nil)
		_, err := w.Fetch(context.Background(), host.NewRequest("", "/error"), nil)
		require.NoError(t, err)
		e := r.wait(t)
		assert.Equal(t, http.StatusServiceUnavailable, e.Status)
		assert.Equal(t, "unavailable", e.Response)
		assert.True(t, IsServerError(&e))
	})

	t.Run("rejection", func(t *testing.T) {
		closed := httptest.NewServer(http.NotFoundHandler())
		closed.Close()
		w, r, _ := install(t, closed.URL, nil)
		_, err := w.Fetch(context.Background(), host.NewRequest("", "/items"), nil)
		require.Error(t, err)
		e := r.wait(t)
		assert.Equal(t, 0, e.Status)
		assert.True(t, IsRejected(&e))
		assert.Contains(t, e.Response, "failed to fetch")
		assert.Contains(t, e.Response, "\n  at ")
	})

	t.Run("opaque", func(t *testing.T) {
		w, r, _ := install(t, "https://app.example/", nil)
		_, err := w.Fetch(context.Background(), host.NewRequest("", server.URL+"/items"), &host.RequestInit{Mode: host.ModeNoCORS})
		require.NoError(t, err)
		e := r.wait(t)
		assert.Equal(t, 0, e.Status)
		assert.Equal(t, host.ResponseOpaque, e.ResponseType)
		assert.False(t, IsRejected(&e))
	})

	t.Run("trace id from context", func(t *testing.T) {
		w, r, _ := install(t, server.URL, NewConfig())
		ctx := WithTraceID(context.Background(), "abc")
		_, err := w.Fetch(ctx, host.NewRequest("", "/items"), nil)
		require.NoError(t, err)
		assert.Equal(t, "abc", r.wait(t).TraceID)

		_, err = w.Fetch(context.Background(), host.NewRequest("", "/items"), nil)
		require.NoError(t, err)
		assert.Empty(t, r.wait(t).TraceID)
	})

	t.Run("custom normalization", func(t *testing.T) {
		config := NewConfig()
		config.NormalizeURL = func(u string) string { return "normalized:" + u }
		w, r, _ := install(t, server.URL, config)
		_, err := w.Fetch(context.Background(), host.NewRequest("", "/items"), nil)
		require.NoError(t, err)
		assert.Equal(t, "normalized:/items", r.wait(t).URL)
	})

	t.Run("failing subscribers", func(t *testing.T) {
		w, r, reports := install(t, server.URL, nil)
		r.observables.Start.Subscribe(func(RequestStartEvent) { panic("start") })
		r.observables.Complete.Subscribe(func(RequestCompleteEvent) { panic("complete") })
		var resp *host.Response
		assert.NotPanics(t, func() {
			var err error
			resp, err = w.Fetch(context.Background(), host.NewRequest("", "/items"), nil)
			require.NoError(t, err)
		})
		assert.Equal(t, http.StatusOK, resp.Status)
		r.wait(t)
		assert.Eventually(t, func() bool { return len(reports()) == 2 }, time.Second, 10*time.Millisecond)
		for _, report := range reports() {
			assert.Equal(t, Error, report.Severity)
		}
	})
}

func TestFetchWithoutOutcome(t *testing.T) {
	w := host.NewWindow(host.NewWindowConfig("https://app.example/"))
	w.Fetch = func(context.Context, *host.Request, *host.RequestInit) (*host.Response, error) {
		return nil, nil
	}
	observables := NewInterceptor(nil, w.Clock(), nil).Install(FetchMechanism(w))
	r := newRecorder(observables)

	resp, err := w.Fetch(context.Background(), host.NewRequest("", "/items"), nil)
	assert.NoError(t, err)
	assert.Nil(t, resp)
	starts, completes := r.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 0, completes)

	tracker := &Tracker{observables: observables, clock: w.Clock()}
	pending := tracker.Start()
	reportFetch(context.Background(), tracker, pending, http.MethodGet, "https://app.example/items", nil, nil)
	assert.False(t, pending.Complete(func() RequestCompleteEvent {
		return RequestCompleteEvent{}
	}), "request is closed without an outcome")
	_, completes = r.counts()
	assert.Equal(t, 0, completes)
}

func TestResponseText(t *testing.T) {
	resp := &host.Response{Body: errBody{}}
	assert.Equal(t, "Unable to retrieve response: broken body", responseText(resp))
	assert.Equal(t, "", responseText(&host.Response{}))
}

type errBody struct{}

func (errBody) Read([]byte) (int, error) { return 0, errors.New("broken body") }
func (errBody) Close() error             { return nil }

func TestXHRInterception(t *testing.T) {
	server := newTestServer(t)

	t.Run("load", func(t *testing.T) {
		w, r, _ := install(t, server.URL+"/index.html", nil)
		x := w.NewXMLHttpRequest()
		var states []host.ReadyState
		var mutex sync.Mutex
		x.SetOnReadyStateChange(func(x *host.XMLHttpRequest) {
			mutex.Lock()
			defer mutex.Unlock()
			states = append(states, x.ReadyState())
		})
		require.NoError(t, x.Open(http.MethodGet, "/items"))
		require.NoError(t, x.Send(nil))

		e := r.wait(t)
		assert.Equal(t, RequestTypeXHR, e.Type)
		assert.Equal(t, http.MethodGet, e.Method)
		assert.Equal(t, server.URL+"/items", e.URL)
		assert.Equal(t, http.StatusOK, e.Status)
		assert.Equal(t, `{"items":[]}`, e.Response)

		rec := MatchRequestTiming(w.Performance, &e)
		require.NotNil(t, rec)
		assert.Equal(t, host.InitiatorXMLHttpRequest, rec.InitiatorType)

		assert.Eventually(t, func() bool {
			mutex.Lock()
			defer mutex.Unlock()
			return len(states) > 0 && states[len(states)-1] == host.Done
		}, time.Second, 10*time.Millisecond, "application handler is still called")

		// both Done and loadend fired; only one complete event
		time.Sleep(50 * time.Millisecond)
		starts, completes := r.counts()
		assert.Equal(t, 1, starts)
		assert.Equal(t, 1, completes)
	})

	t.Run("trace id header", func(t *testing.T) {
		w, r, _ := install(t, server.URL, NewConfig())
		x := w.NewXMLHttpRequest()
		x.SetContext(WithTraceID(context.Background(), "from-context"))
		require.NoError(t, x.Open(http.MethodGet, "/traced"))
		require.NoError(t, x.Send(nil))
		assert.Equal(t, "from-backend", r.wait(t).TraceID)

		x = w.NewXMLHttpRequest()
		x.SetContext(WithTraceID(context.Background(), "from-context"))
		require.NoError(t, x.Open(http.MethodGet, "/items"))
		require.NoError(t, x.Send(nil))
		assert.Equal(t, "from-context", r.wait(t).TraceID)
	})

	t.Run("network error", func(t *testing.T) {
		closed := httptest.NewServer(http.NotFoundHandler())
		closed.Close()
		w, r, _ := install(t, closed.URL, nil)
		x := w.NewXMLHttpRequest()
		require.NoError(t, x.Open(http.MethodGet, "/items"))
		require.NoError(t, x.Send(nil))
		e := r.wait(t)
		assert.Equal(t, 0, e.Status)
		assert.True(t, IsRejected(&e))
	})

	t.Run("abort", func(t *testing.T) {
		w, r, _ := install(t, server.URL, nil)
		x := w.NewXMLHttpRequest()
		require.NoError(t, x.Open(http.MethodGet, "/slow"))
		require.NoError(t, x.Send(nil))
		x.Abort()
		e := r.wait(t)
		assert.Equal(t, 0, e.Status)
	})

	t.Run("send in invalid state", func(t *testing.T) {
		w, r, _ := install(t, server.URL, nil)
		x := w.NewXMLHttpRequest()
		assert.ErrorIs(t, x.Send(nil), host.ErrInvalidState)
		starts, completes := r.counts()
		assert.Equal(t, 1, starts)
		assert.Equal(t, 0, completes)

		require.NoError(t, x.Open(http.MethodGet, "/items"))
		require.NoError(t, x.Send(nil))
		r.wait(t)
		time.Sleep(50 * time.Millisecond)
		_, completes = r.counts()
		assert.Equal(t, 1, completes)
	})

	t.Run("increasing ids", func(t *testing.T) {
		w, r, _ := install(t, server.URL, nil)
		var ids []int64
		for i := 0; i < 3; i++ {
			x := w.NewXMLHttpRequest()
			require.NoError(t, x.Open(http.MethodGet, "/items"))
			require.NoError(t, x.Send(nil))
			ids = append(ids, r.wait(t).RequestID)
		}
		assert.Less(t, ids[0], ids[1])
		assert.Less(t, ids[1], ids[2])
	})
}
