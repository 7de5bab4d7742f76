package core

import (
	"context"
	"fmt"

	"github.com/abema/netwatch/host"
	"github.com/abema/netwatch/internal/stack"
)

type fetchMechanism struct {
	window *host.Window
}

// FetchMechanism wraps Window.Fetch.
func FetchMechanism(w *host.Window) Mechanism {
	return &fetchMechanism{window: w}
}

func (m *fetchMechanism) Available() bool {
	return m.window.Fetch != nil
}

func (m *fetchMechanism) Intercept(tracker *Tracker) {
	original := m.window.Fetch
	m.window.Fetch = func(ctx context.Context, input *host.Request, init *host.RequestInit) (*host.Response, error) {
		var method, u string
		tracker.monitoring.Run(func() {
			method = fetchMethod(input, init)
			if input != nil {
				u = tracker.normalizeURL(m.window, input.URL)
			}
		})
		pending := tracker.Start()
		resp, err := original(ctx, input, init)
		tracker.monitoring.Run(func() {
			reportFetch(ctx, tracker, pending, method, u, resp, err)
		})
		return resp, err
	}
}

func fetchMethod(input *host.Request, init *host.RequestInit) string {
	if init != nil && init.Method != "" {
		return init.Method
	}
	if input != nil && input.Method != "" {
		return input.Method
	}
	return "GET"
}

func reportFetch(ctx context.Context, tracker *Tracker, pending *PendingRequest, method, u string, resp *host.Response, err error) {
	if err == nil && resp == nil {
		pending.Abandon()
		return
	}
	pending.Complete(func() RequestCompleteEvent {
		event := RequestCompleteEvent{
			Type:    RequestTypeFetch,
			Method:  method,
			URL:     u,
			TraceID: tracker.traceID(ctx),
		}
		if err != nil {
			event.Response = stack.String(stack.Capture(err))
			return event
		}
		event.Status = resp.Status
		event.ResponseType = resp.Type
		event.Response = responseText(resp)
		return event
	})
}

// responseText reads a copy of the body, leaving resp readable by the caller.
func responseText(resp *host.Response) string {
	if resp.Body == nil {
		return ""
	}
	clone, err := resp.Clone()
	if err != nil {
		return fmt.Sprintf("Unable to retrieve response: %s", err)
	}
	text, err := clone.Text()
	if err != nil {
		return fmt.Sprintf("Unable to retrieve response: %s", err)
	}
	return text
}
