package core

import (
	"github.com/abema/netwatch/host"
)

type xhrMechanism struct {
	window *host.Window
}

// XHRMechanism wraps the XMLHttpRequest entry points of w.
func XHRMechanism(w *host.Window) Mechanism {
	return &xhrMechanism{window: w}
}

func (m *xhrMechanism) Available() bool {
	return m.window.XHR != nil
}

type openedRequestKey struct{}

type openedRequest struct {
	method string
	url    string
}

func (m *xhrMechanism) Intercept(tracker *Tracker) {
	proto := m.window.XHR

	originalOpen := proto.Open
	proto.Open = func(x *host.XMLHttpRequest, method, u string) error {
		tracker.monitoring.Run(func() {
			x.SetAttachment(openedRequestKey{}, &openedRequest{
				method: method,
				url:    tracker.normalizeURL(m.window, u),
			})
		})
		return originalOpen(x, method, u)
	}

	originalSend := proto.Send
	proto.Send = func(x *host.XMLHttpRequest, body []byte) error {
		pending := tracker.Start()
		report := func(x *host.XMLHttpRequest) {
			tracker.monitoring.Run(func() {
				reportXHR(tracker, pending, x)
			})
		}

		var onReadyStateChange host.XHRHandler
		tracker.monitoring.Run(func() {
			onReadyStateChange = x.OnReadyStateChange()
			x.SetOnReadyStateChange(func(x *host.XMLHttpRequest) {
				if x.ReadyState() == host.Done {
					report(x)
				}
				if onReadyStateChange != nil {
					onReadyStateChange(x)
				}
			})
			x.AddEventListener(host.EventLoadEnd, report)
		})

		err := originalSend(x, body)
		if err != nil {
			tracker.monitoring.Run(func() {
				pending.Abandon()
				x.SetOnReadyStateChange(onReadyStateChange)
			})
		}
		return err
	}
}

func reportXHR(tracker *Tracker, pending *PendingRequest, x *host.XMLHttpRequest) {
	opened, _ := x.Attachment(openedRequestKey{}).(*openedRequest)
	if opened == nil {
		// opened before interception started
		pending.Abandon()
		return
	}
	pending.Complete(func() RequestCompleteEvent {
		event := RequestCompleteEvent{
			Type:     RequestTypeXHR,
			Method:   opened.method,
			URL:      opened.url,
			Status:   x.Status(),
			Response: x.ResponseText(),
			TraceID:  x.GetResponseHeader(TraceIDHeader),
		}
		if event.TraceID == "" {
			event.TraceID = tracker.traceID(x.Context())
		}
		return event
	})
}
