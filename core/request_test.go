package core

import (
	"testing"

	"github.com/abema/netwatch/host"
	"github.com/stretchr/testify/assert"
)

func TestIsRejected(t *testing.T) {
	assert.True(t, IsRejected(&RequestCompleteEvent{Status: 0}))
	assert.True(t, IsRejected(&RequestCompleteEvent{Status: 0, ResponseType: host.ResponseError}))
	assert.False(t, IsRejected(&RequestCompleteEvent{Status: 0, ResponseType: host.ResponseOpaque}))
	assert.False(t, IsRejected(&RequestCompleteEvent{Status: 200}))
	assert.False(t, IsRejected(&RequestCompleteEvent{Status: 503}))
}

func TestIsServerError(t *testing.T) {
	assert.False(t, IsServerError(&RequestCompleteEvent{Status: 0}))
	assert.False(t, IsServerError(&RequestCompleteEvent{Status: 404}))
	assert.False(t, IsServerError(&RequestCompleteEvent{Status: 499}))
	assert.True(t, IsServerError(&RequestCompleteEvent{Status: 500}))
	assert.True(t, IsServerError(&RequestCompleteEvent{Status: 503}))
}

func TestRequestType(t *testing.T) {
	assert.Equal(t, "xhr", RequestTypeXHR.String())
	assert.Equal(t, "fetch", RequestTypeFetch.String())
	assert.Equal(t, ResourceXHR, RequestTypeXHR.Kind())
	assert.Equal(t, ResourceFetch, RequestTypeFetch.Kind())
}

func TestNextRequestID(t *testing.T) {
	a := nextRequestID()
	b := nextRequestID()
	assert.Greater(t, a, int64(0))
	assert.Greater(t, b, a)
}
