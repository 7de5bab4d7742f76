package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/abema/netwatch/internal/url"
)

type RequestMode string

const (
	ModeCORS       RequestMode = "cors"
	ModeNoCORS     RequestMode = "no-cors"
	ModeSameOrigin RequestMode = "same-origin"
)

type ResponseType string

const (
	ResponseBasic  ResponseType = "basic"
	ResponseCORS   ResponseType = "cors"
	ResponseOpaque ResponseType = "opaque"
	ResponseError  ResponseType = "error"
)

var (
	ErrFetchUnavailable = errors.New("fetch is not available")
	errCrossOrigin      = errors.New("cross-origin request in same-origin mode")
)

// Request is the input of a fetch call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

func NewRequest(method, url string) *Request {
	return &Request{
		Method: method,
		URL:    url,
		Header: http.Header{},
	}
}

// RequestInit holds per-call options. Set fields take precedence over the Request.
type RequestInit struct {
	Method string
	Header http.Header
	Body   []byte
	Mode   RequestMode
}

type Response struct {
	Type       ResponseType
	URL        string
	Status     int
	StatusText string
	Header     http.Header
	Body       io.ReadCloser
}

// Clone duplicates the body stream so that both r and the clone can be
// consumed independently. If reading fails, r keeps the bytes read so far
// followed by the same error.
func (r *Response) Clone() (*Response, error) {
	data, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(data), &errReader{err: err}))
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	clone := *r
	clone.Header = r.Header.Clone()
	clone.Body = io.NopCloser(bytes.NewReader(data))
	return &clone, nil
}

// Text consumes the body.
func (r *Response) Text() (string, error) {
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type errReader struct {
	err error
}

func (r *errReader) Read([]byte) (int, error) {
	return 0, r.err
}

// FetchFunc issues a request. A returned error is a network-level failure;
// HTTP error statuses are reported through Response.Status.
type FetchFunc func(ctx context.Context, input *Request, init *RequestInit) (*Response, error)

func (w *Window) fetch(ctx context.Context, input *Request, init *RequestInit) (*Response, error) {
	t := &transfer{
		method:    input.Method,
		url:       input.URL,
		header:    input.Header,
		body:      input.Body,
		initiator: InitiatorFetch,
	}
	mode := ModeCORS
	if init != nil {
		if init.Method != "" {
			t.method = init.Method
		}
		if init.Header != nil {
			t.header = init.Header
		}
		if init.Body != nil {
			t.body = init.Body
		}
		if init.Mode != "" {
			mode = init.Mode
		}
	}
	if t.method == "" {
		t.method = http.MethodGet
	}
	crossOrigin := !url.SameOrigin(w.Location(), url.Normalize(w.Location(), t.url))
	if crossOrigin && mode == ModeSameOrigin {
		return nil, fmt.Errorf("failed to fetch: %s: %w", t.url, errCrossOrigin)
	}
	t.cors = mode == ModeCORS

	res, err := w.load(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %s: %w", t.url, err)
	}
	if crossOrigin && mode == ModeNoCORS {
		return &Response{
			Type:   ResponseOpaque,
			Header: http.Header{},
			Body:   http.NoBody,
		}, nil
	}
	typ := ResponseBasic
	if crossOrigin {
		typ = ResponseCORS
	}
	return &Response{
		Type:       typ,
		URL:        res.url,
		Status:     res.status,
		StatusText: res.statusText,
		Header:     res.header,
		Body:       io.NopCloser(bytes.NewReader(res.body)),
	}, nil
}

// FetchRoundTripper issues requests of an *http.Client through Window.Fetch,
// so that they go through whatever currently wraps it.
type FetchRoundTripper struct {
	Window *Window
}

func (t *FetchRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
	}
	fetch := t.Window.Fetch
	if fetch == nil {
		return nil, ErrFetchUnavailable
	}
	resp, err := fetch(req.Context(), &Request{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
		Body:   body,
	}, nil)
	if err != nil {
		return nil, err
	}
	return &http.Response{
		Status:        strconv.Itoa(resp.Status) + " " + resp.StatusText,
		StatusCode:    resp.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        resp.Header,
		Body:          resp.Body,
		ContentLength: -1,
		Request:       req,
	}, nil
}
