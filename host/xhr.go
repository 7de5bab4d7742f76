package host

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
)

type ReadyState int

const (
	Unsent ReadyState = iota
	Opened
	HeadersReceived
	Loading
	Done
)

func (s ReadyState) String() string {
	switch s {
	case Unsent:
		return "UNSENT"
	case Opened:
		return "OPENED"
	case HeadersReceived:
		return "HEADERS_RECEIVED"
	case Loading:
		return "LOADING"
	case Done:
		return "DONE"
	}
	return "<Unknown>"
}

// Progress events dispatched by XMLHttpRequest.
const (
	EventLoad    = "load"
	EventError   = "error"
	EventAbort   = "abort"
	EventLoadEnd = "loadend"
)

var ErrInvalidState = errors.New("xhr: invalid state")

// XHRPrototype holds the entry points shared by every XMLHttpRequest of a window.
type XHRPrototype struct {
	Open func(x *XMLHttpRequest, method, url string) error
	Send func(x *XMLHttpRequest, body []byte) error
}

type XHRHandler func(x *XMLHttpRequest)

// XMLHttpRequest is the event-driven request mechanism: the request is
// described by Open, started by Send and reported through ready state
// changes and progress events dispatched from a background goroutine.
type XMLHttpRequest struct {
	window *Window
	ctx    context.Context
	cancel context.CancelFunc

	mutex              sync.Mutex
	method             string
	url                string
	header             http.Header
	readyState         ReadyState
	sent               bool
	status             int
	statusText         string
	response           []byte
	responseURL        string
	responseHeader     http.Header
	onReadyStateChange XHRHandler
	listeners          map[string][]XHRHandler
	attachments        map[interface{}]interface{}
}

func (w *Window) NewXMLHttpRequest() *XMLHttpRequest {
	x := &XMLHttpRequest{
		window:    w,
		listeners: make(map[string][]XHRHandler),
	}
	x.ctx, x.cancel = context.WithCancel(context.Background())
	return x
}

func (x *XMLHttpRequest) Open(method, url string) error {
	return x.window.XHR.Open(x, method, url)
}

func (x *XMLHttpRequest) Send(body []byte) error {
	return x.window.XHR.Send(x, body)
}

// Abort cancels an in-flight request. The abort is reported through the
// usual ready state change and loadend notifications.
func (x *XMLHttpRequest) Abort() {
	x.mutex.Lock()
	cancel := x.cancel
	x.mutex.Unlock()
	cancel()
}

// SetContext binds the request to ctx. It must be called before Send.
func (x *XMLHttpRequest) SetContext(ctx context.Context) {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	x.cancel()
	x.ctx, x.cancel = context.WithCancel(ctx)
}

func (x *XMLHttpRequest) Context() context.Context {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	return x.ctx
}

func (x *XMLHttpRequest) SetRequestHeader(key, value string) error {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	if x.readyState != Opened || x.sent {
		return ErrInvalidState
	}
	x.header.Add(key, value)
	return nil
}

func (x *XMLHttpRequest) ReadyState() ReadyState {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	return x.readyState
}

func (x *XMLHttpRequest) Status() int {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	return x.status
}

func (x *XMLHttpRequest) StatusText() string {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	return x.statusText
}

func (x *XMLHttpRequest) Response() []byte {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	return x.response
}

// ResponseURL returns the URL of the response after redirects.
func (x *XMLHttpRequest) ResponseURL() string {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	return x.responseURL
}

func (x *XMLHttpRequest) ResponseText() string {
	return string(x.Response())
}

// GetResponseHeader returns "" until headers have been received.
func (x *XMLHttpRequest) GetResponseHeader(key string) string {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	if x.responseHeader == nil {
		return ""
	}
	return x.responseHeader.Get(key)
}

func (x *XMLHttpRequest) OnReadyStateChange() XHRHandler {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	return x.onReadyStateChange
}

func (x *XMLHttpRequest) SetOnReadyStateChange(handler XHRHandler) {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	x.onReadyStateChange = handler
}

func (x *XMLHttpRequest) AddEventListener(event string, handler XHRHandler) {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	x.listeners[event] = append(x.listeners[event], handler)
}

// SetAttachment stores a value on the request on behalf of code that wraps
// the entry points.
func (x *XMLHttpRequest) SetAttachment(key, value interface{}) {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	if x.attachments == nil {
		x.attachments = make(map[interface{}]interface{})
	}
	x.attachments[key] = value
}

func (x *XMLHttpRequest) Attachment(key interface{}) interface{} {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	return x.attachments[key]
}

func (x *XMLHttpRequest) setReadyState(state ReadyState) {
	x.mutex.Lock()
	x.readyState = state
	handler := x.onReadyStateChange
	x.mutex.Unlock()
	if handler != nil {
		handler(x)
	}
}

func (x *XMLHttpRequest) dispatch(event string) {
	x.mutex.Lock()
	handlers := append([]XHRHandler(nil), x.listeners[event]...)
	x.mutex.Unlock()
	for _, handler := range handlers {
		handler(x)
	}
}

func openXHR(x *XMLHttpRequest, method, url string) error {
	x.mutex.Lock()
	if x.sent && x.readyState != Done {
		x.mutex.Unlock()
		return ErrInvalidState
	}
	x.method = strings.ToUpper(method)
	x.url = url
	x.header = http.Header{}
	x.sent = false
	x.status = 0
	x.statusText = ""
	x.response = nil
	x.responseURL = ""
	x.responseHeader = nil
	x.mutex.Unlock()
	x.setReadyState(Opened)
	return nil
}

func sendXHR(x *XMLHttpRequest, body []byte) error {
	x.mutex.Lock()
	if x.readyState != Opened || x.sent {
		x.mutex.Unlock()
		return ErrInvalidState
	}
	x.sent = true
	t := &transfer{
		method:    x.method,
		url:       x.url,
		header:    x.header.Clone(),
		body:      body,
		initiator: InitiatorXMLHttpRequest,
		cors:      true,
	}
	ctx := x.ctx
	x.mutex.Unlock()

	go x.run(ctx, t)
	return nil
}

func (x *XMLHttpRequest) run(ctx context.Context, t *transfer) {
	res, err := x.window.load(ctx, t)
	if err != nil {
		x.setReadyState(Done)
		if ctx.Err() != nil {
			x.dispatch(EventAbort)
		} else {
			x.dispatch(EventError)
		}
		x.dispatch(EventLoadEnd)
		return
	}

	x.mutex.Lock()
	x.status = res.status
	x.statusText = res.statusText
	x.responseURL = res.url
	x.responseHeader = res.header
	x.mutex.Unlock()
	x.setReadyState(HeadersReceived)
	x.setReadyState(Loading)

	x.mutex.Lock()
	x.response = res.body
	x.mutex.Unlock()
	x.setReadyState(Done)
	x.dispatch(EventLoad)
	x.dispatch(EventLoadEnd)
}
