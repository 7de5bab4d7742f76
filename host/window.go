package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/abema/netwatch/internal/url"
)

const maxRedirectCount = 10

var errTooManyRedirects = errors.New("stopped after 10 redirects")

type WindowConfig struct {
	// Location is the URL of the current document.
	// Relative request URLs are resolved against it and it defines the origin
	// used for cross-origin decisions.
	Location        string
	HTTPClient      *http.Client
	Clock           Clock
	TimingRetention time.Duration
	// NoFetch removes the promise-based mechanism, as on platforms without fetch.
	NoFetch bool
}

func NewWindowConfig(location string) *WindowConfig {
	return &WindowConfig{
		Location:        location,
		HTTPClient:      http.DefaultClient,
		TimingRetention: DefaultTimingRetention,
	}
}

// Window is one page lifetime of the host platform: a document location,
// a store of timing records and the two request-issuing mechanisms.
// XHR and Fetch are entry points shared by every caller; replacing them
// changes how all subsequent requests are issued.
type Window struct {
	Performance *Performance
	XHR         *XHRPrototype
	Fetch       FetchFunc

	clock    Clock
	client   *http.Client
	location string
	mutex    sync.RWMutex
}

func NewWindow(config *WindowConfig) *Window {
	clock := config.Clock
	if clock == nil {
		clock = NewClock()
	}
	client := config.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	w := &Window{
		Performance: NewPerformance(clock, config.TimingRetention),
		clock:       clock,
		client:      client,
		location:    config.Location,
	}
	w.XHR = &XHRPrototype{
		Open: openXHR,
		Send: sendXHR,
	}
	if !config.NoFetch {
		w.Fetch = w.fetch
	}
	return w
}

func (w *Window) Location() string {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return w.location
}

func (w *Window) setLocation(location string) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.location = location
}

func (w *Window) Clock() Clock {
	return w.clock
}

type transfer struct {
	method    string
	url       string
	header    http.Header
	body      []byte
	initiator string
	// cors enables the preflight for non-simple cross-origin requests.
	cors bool
}

type transferResult struct {
	url        string
	status     int
	statusText string
	header     http.Header
	body       []byte
	timing     *TimingRecord
}

// load performs t, preceded by a preflight when one is required,
// and records timing for every transfer that completes.
func (w *Window) load(ctx context.Context, t *transfer) (*transferResult, error) {
	name := url.Normalize(w.Location(), t.url)
	startTime := w.clock.Now()
	if t.cors && !url.SameOrigin(w.Location(), name) && !isSimpleRequest(t.method, t.header) {
		preflight, err := w.preflight(ctx, name, t)
		if err != nil {
			return nil, err
		}
		startTime = preflight.timing.ResponseEnd
	}
	return w.transfer(ctx, name, t, startTime)
}

func (w *Window) preflight(ctx context.Context, name string, t *transfer) (*transferResult, error) {
	header := http.Header{}
	header.Set("Access-Control-Request-Method", t.method)
	if len(t.header) != 0 {
		keys := make([]string, 0, len(t.header))
		for key := range t.header {
			keys = append(keys, strings.ToLower(key))
		}
		header.Set("Access-Control-Request-Headers", strings.Join(keys, ","))
	}
	res, err := w.transfer(ctx, name, &transfer{
		method:    http.MethodOptions,
		header:    header,
		initiator: t.initiator,
	}, w.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("preflight failed: %w", err)
	}
	if res.status < 200 || res.status >= 300 {
		return nil, fmt.Errorf("preflight rejected: %s: status %d", name, res.status)
	}
	return res, nil
}

func (w *Window) transfer(ctx context.Context, name string, t *transfer, startTime float64) (*transferResult, error) {
	timer := newTransferTimer(w.clock, startTime)
	req, err := http.NewRequestWithContext(
		httptrace.WithClientTrace(ctx, timer.clientTrace()),
		t.method, name, bytes.NewReader(t.body))
	if err != nil {
		return nil, err
	}
	for key, values := range t.header {
		req.Header[key] = append([]string(nil), values...)
	}

	client := *w.client
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirectCount {
			return errTooManyRedirects
		}
		timer.redirected()
		return nil
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	rec := timer.record(name, t.initiator, int64(len(data)))
	if !w.timingAllowed(name, resp.Header) {
		rec.restrict()
	}
	w.Performance.Add(rec)

	return &transferResult{
		url:        resp.Request.URL.String(),
		status:     resp.StatusCode,
		statusText: strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "),
		header:     resp.Header,
		body:       data,
		timing:     rec,
	}, nil
}

func (w *Window) timingAllowed(name string, header http.Header) bool {
	location := w.Location()
	if url.SameOrigin(location, name) {
		return true
	}
	origin, err := url.Origin(location)
	if err != nil {
		return false
	}
	for _, value := range header.Values("Timing-Allow-Origin") {
		for _, allowed := range strings.Split(value, ",") {
			allowed = strings.TrimSpace(allowed)
			if allowed == "*" || allowed == origin {
				return true
			}
		}
	}
	return false
}

var safelistedHeaders = []string{"Accept", "Accept-Language", "Content-Language", "Content-Type"}

func isSimpleRequest(method string, header http.Header) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost:
	default:
		return false
	}
	for key := range header {
		simple := false
		for _, safe := range safelistedHeaders {
			if http.CanonicalHeaderKey(key) == safe {
				simple = true
				break
			}
		}
		if !simple {
			return false
		}
	}
	return true
}
