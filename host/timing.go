package host

import (
	"crypto/tls"
	"net/http/httptrace"
	"sync"
)

// Initiator labels carried by TimingRecord.InitiatorType.
const (
	InitiatorDocument       = "initial_document"
	InitiatorXMLHttpRequest = "xmlhttprequest"
	InitiatorFetch          = "fetch"
	InitiatorBeacon         = "beacon"
	InitiatorImg            = "img"
	InitiatorScript         = "script"
	InitiatorLink           = "link"
	InitiatorAudio          = "audio"
	InitiatorVideo          = "video"
	InitiatorOther          = "other"
)

// TimingRecord is the measurement of one network transfer.
// Timestamps are milliseconds relative to the window's time origin, and
// fields of phases that did not happen are 0 or collapsed onto the
// preceding timestamp, the way resource timing entries are reported.
type TimingRecord struct {
	Name                  string  `json:"name"`
	InitiatorType         string  `json:"initiatorType"`
	StartTime             float64 `json:"startTime"`
	Duration              float64 `json:"duration"`
	RedirectStart         float64 `json:"redirectStart"`
	RedirectEnd           float64 `json:"redirectEnd"`
	FetchStart            float64 `json:"fetchStart"`
	DomainLookupStart     float64 `json:"domainLookupStart"`
	DomainLookupEnd       float64 `json:"domainLookupEnd"`
	ConnectStart          float64 `json:"connectStart"`
	SecureConnectionStart float64 `json:"secureConnectionStart"`
	ConnectEnd            float64 `json:"connectEnd"`
	RequestStart          float64 `json:"requestStart"`
	ResponseStart         float64 `json:"responseStart"`
	ResponseEnd           float64 `json:"responseEnd"`
	DecodedBodySize       int64   `json:"decodedBodySize"`
}

// restrict hides everything but the overall interval, as done for
// cross-origin transfers that do not opt in with Timing-Allow-Origin.
func (r *TimingRecord) restrict() {
	r.RedirectStart = 0
	r.RedirectEnd = 0
	r.DomainLookupStart = 0
	r.DomainLookupEnd = 0
	r.ConnectStart = 0
	r.SecureConnectionStart = 0
	r.ConnectEnd = 0
	r.RequestStart = 0
	r.ResponseStart = 0
	r.DecodedBodySize = 0
}

type transferTimer struct {
	clock Clock
	mutex sync.Mutex

	startTime     float64
	redirectStart float64
	redirectEnd   float64
	redirects     int

	fetchStart   float64
	dnsStart     float64
	dnsEnd       float64
	connectStart float64
	connectEnd   float64
	tlsStart     float64
	tlsEnd       float64
	gotConn      float64
	firstByte    float64
}

func newTransferTimer(clock Clock, startTime float64) *transferTimer {
	return &transferTimer{
		clock:      clock,
		startTime:  startTime,
		fetchStart: startTime,
	}
}

func (t *transferTimer) mark(set func(now float64)) {
	now := t.clock.Now()
	t.mutex.Lock()
	defer t.mutex.Unlock()
	set(now)
}

func (t *transferTimer) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GetConn: func(string) {
			t.mark(func(now float64) {
				if t.redirects != 0 {
					t.fetchStart = now
				}
			})
		},
		DNSStart: func(httptrace.DNSStartInfo) {
			t.mark(func(now float64) {
				if t.dnsStart == 0 {
					t.dnsStart = now
				}
			})
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			t.mark(func(now float64) { t.dnsEnd = now })
		},
		ConnectStart: func(string, string) {
			t.mark(func(now float64) {
				if t.connectStart == 0 {
					t.connectStart = now
				}
			})
		},
		ConnectDone: func(string, string, error) {
			t.mark(func(now float64) { t.connectEnd = now })
		},
		TLSHandshakeStart: func() {
			t.mark(func(now float64) { t.tlsStart = now })
		},
		TLSHandshakeDone: func(tls.ConnectionState, error) {
			t.mark(func(now float64) { t.tlsEnd = now })
		},
		GotConn: func(httptrace.GotConnInfo) {
			t.mark(func(now float64) { t.gotConn = now })
		},
		GotFirstResponseByte: func() {
			t.mark(func(now float64) { t.firstByte = now })
		},
	}
}

// redirected closes the current hop; the next hop starts a new fetch.
func (t *transferTimer) redirected() {
	t.mark(func(now float64) {
		if t.redirects == 0 {
			t.redirectStart = t.startTime
		}
		t.redirectEnd = now
		t.redirects++
		t.fetchStart = now
		t.dnsStart, t.dnsEnd = 0, 0
		t.connectStart, t.connectEnd = 0, 0
		t.tlsStart, t.tlsEnd = 0, 0
		t.gotConn, t.firstByte = 0, 0
	})
}

func (t *transferTimer) record(name, initiator string, size int64) *TimingRecord {
	responseEnd := t.clock.Now()
	t.mutex.Lock()
	defer t.mutex.Unlock()

	rec := &TimingRecord{
		Name:            name,
		InitiatorType:   initiator,
		StartTime:       t.startTime,
		Duration:        responseEnd - t.startTime,
		RedirectStart:   t.redirectStart,
		RedirectEnd:     t.redirectEnd,
		FetchStart:      t.fetchStart,
		ResponseEnd:     responseEnd,
		DecodedBodySize: size,
	}
	rec.DomainLookupStart, rec.DomainLookupEnd = t.fetchStart, t.fetchStart
	if t.dnsStart != 0 && t.dnsEnd != 0 {
		rec.DomainLookupStart, rec.DomainLookupEnd = t.dnsStart, t.dnsEnd
	}
	rec.ConnectStart, rec.ConnectEnd = rec.DomainLookupEnd, rec.DomainLookupEnd
	if t.connectStart != 0 && t.connectEnd != 0 {
		rec.ConnectStart, rec.ConnectEnd = t.connectStart, t.connectEnd
	}
	if t.tlsStart != 0 {
		rec.SecureConnectionStart = t.tlsStart
		if t.tlsEnd > rec.ConnectEnd {
			rec.ConnectEnd = t.tlsEnd
		}
	}
	rec.RequestStart = rec.ConnectEnd
	if t.gotConn > rec.RequestStart {
		rec.RequestStart = t.gotConn
	}
	rec.ResponseStart = responseEnd
	if t.firstByte != 0 {
		rec.ResponseStart = t.firstByte
	}
	return rec
}
