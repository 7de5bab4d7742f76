package player

import (
	"time"

	"github.com/abema/netwatch/core"
	"github.com/abema/netwatch/host"
	backoff "github.com/cenkalti/backoff/v4"
)

type StreamType int

const (
	StreamTypeHLS StreamType = iota
	StreamTypeDASH
)

func (t StreamType) String() string {
	switch t {
	case StreamTypeHLS:
		return "HLS"
	case StreamTypeDASH:
		return "DASH"
	}
	return "<Unknown>"
}

type OnTerminateHandler func()

type Config struct {
	URL        string
	StreamType StreamType
	// Window issues every request of the player through its XMLHttpRequest.
	Window                      *host.Window
	DefaultInterval             time.Duration
	PrioritizeSuggestedInterval bool
	// LocationCacheTTL is how long the redirected location of a manifest is
	// reused. Zero disables the cache.
	LocationCacheTTL time.Duration
	ManifestTimeout  time.Duration
	ManifestBackoff  func() backoff.BackOff
	SegmentTimeout   time.Duration
	SegmentBackoff   func() backoff.BackOff
	// SegmentMaxConcurrency limits the segments loaded at the same time.
	SegmentMaxConcurrency int
	// MaxBandwidth caps the variant or representation chosen for playback.
	// Zero means the highest one.
	MaxBandwidth   int64
	TerminateIfVOD bool
	OnReport       core.OnReportHandler
	OnTerminate    OnTerminateHandler
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second
	return b
}

func NewConfig(w *host.Window, url string, streamType StreamType) *Config {
	return &Config{
		URL:                   url,
		StreamType:            streamType,
		Window:                w,
		DefaultInterval:       5 * time.Second,
		LocationCacheTTL:      time.Minute,
		ManifestTimeout:       1 * time.Second,
		ManifestBackoff:       defaultBackOff,
		SegmentTimeout:        3 * time.Second,
		SegmentBackoff:        defaultBackOff,
		SegmentMaxConcurrency: 4,
	}
}
