package player

import (
	"context"
	"log"
	"time"

	"github.com/abema/netwatch/core"
	"github.com/abema/netwatch/internal/thread"
	backoff "github.com/cenkalti/backoff/v4"
	"github.com/zencoder/go-dash/mpd"
)

const playerReport = "Player"

type Player interface {
	Stop()
}

// player polls the manifest of a stream and loads its new segments, which
// makes it a steady source of requests for the window it runs in.
type player struct {
	config     *Config
	hlsLoader  *hlsPlaylistLoader
	dashLoader *dashManifestLoader
	buffer     *segmentBuffer
	context    context.Context
	stop       func()
}

func Play(config *Config) Player {
	l := newXHRLoader(config.Window)
	manifestLoader := l
	if config.LocationCacheTTL > 0 {
		manifestLoader = newLocationCache(l, config.LocationCacheTTL)
	}
	p := &player{
		config: config,
		buffer: newSegmentBuffer(l, config.SegmentTimeout, config.SegmentBackoff, config.SegmentMaxConcurrency),
	}
	switch config.StreamType {
	case StreamTypeHLS:
		p.hlsLoader = newHLSPlaylistLoader(manifestLoader, config.ManifestTimeout, config.MaxBandwidth)
	case StreamTypeDASH:
		p.dashLoader = newDASHManifestLoader(manifestLoader, config.ManifestTimeout)
	}
	p.context, p.stop = context.WithCancel(context.Background())
	go p.run()
	return p
}

func (p *player) Stop() {
	p.stop()
}

func (p *player) run() {
	for {
		cont, waitDur := p.proc()
		if !cont {
			break
		}
		if cont := p.wait(waitDur); !cont {
			break
		}
	}
	if p.config.OnTerminate != nil {
		p.config.OnTerminate()
	}
}

func (p *player) proc() (cont bool, waitDur time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			p.onError("panic is occurred", thread.PanicToError(r, nil))
			cont = true
			waitDur = p.config.DefaultInterval
		}
	}()

	var playlists *Playlists
	var manifest *Manifest
	err := backoff.RetryNotify(func() error {
		var err error
		switch p.config.StreamType {
		case StreamTypeHLS:
			playlists, err = p.hlsLoader.Load(p.context, p.config.URL)
		default:
			manifest, err = p.dashLoader.Load(p.context, p.config.URL)
		}
		if err != nil && (p.context.Err() != nil || isPermanent(err)) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(p.manifestBackOff(), p.context), func(err error, _ time.Duration) {
		log.Printf("WARN: failed to load manifest: %s: %s", p.config.URL, err)
	})
	if err != nil {
		if p.context.Err() != nil {
			return false, 0
		}
		p.onError("failed to load manifest", err)
		return true, p.config.DefaultInterval
	}

	var urls []string
	switch p.config.StreamType {
	case StreamTypeHLS:
		urls, err = playlists.SegmentURLs()
	default:
		urls, err = segmentURLs(manifest, p.config.MaxBandwidth)
	}
	if err != nil {
		p.onError("invalid segment URL", err)
		return true, p.config.DefaultInterval
	}
	n, err := p.buffer.Sync(p.context, urls)
	if err != nil {
		if p.context.Err() != nil {
			return false, 0
		}
		p.onError("failed to load segment", err)
		return true, p.config.DefaultInterval
	}
	p.onReport(core.Reports{{
		Name:     playerReport,
		Severity: core.Info,
		Message:  "playing",
		Values: core.Values{
			"segments": len(urls),
			"loaded":   n,
		},
	}})

	switch p.config.StreamType {
	case StreamTypeHLS:
		return p.hlsWaitDuration(playlists)
	default:
		return p.dashWaitDuration(manifest)
	}
}

func (p *player) manifestBackOff() backoff.BackOff {
	if p.config.ManifestBackoff == nil {
		return &backoff.StopBackOff{}
	}
	return p.config.ManifestBackoff()
}

func segmentURLs(manifest *Manifest, maxBandwidth int64) ([]string, error) {
	segments, err := manifest.Segments(maxBandwidth)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(segments))
	for _, seg := range segments {
		urls = append(urls, seg.URL)
	}
	return urls, nil
}

func (p *player) hlsWaitDuration(playlists *Playlists) (bool, time.Duration) {
	if playlists.IsVOD() {
		if p.config.TerminateIfVOD {
			return false, 0
		}
		return true, p.config.DefaultInterval
	}
	if !p.config.PrioritizeSuggestedInterval {
		return true, p.config.DefaultInterval
	}
	dur := time.Duration(playlists.MaxTargetDuration()) * time.Second / 2
	if dur == 0 {
		return true, p.config.DefaultInterval
	} else if dur < time.Second {
		return true, time.Second
	}
	return true, dur
}

func (p *player) dashWaitDuration(manifest *Manifest) (bool, time.Duration) {
	if !manifest.IsDynamic() {
		if p.config.TerminateIfVOD {
			return false, 0
		}
		return true, p.config.DefaultInterval
	}
	if !p.config.PrioritizeSuggestedInterval || manifest.MinimumUpdatePeriod == nil {
		return true, p.config.DefaultInterval
	}
	dur, err := mpd.ParseDuration(*manifest.MinimumUpdatePeriod)
	if err != nil {
		log.Printf("ERROR: failed to parse minimumUpdatePeriod: %s: %s", manifest.URL, err)
		return true, p.config.DefaultInterval
	} else if dur < time.Second {
		return true, time.Second
	}
	return true, dur
}

func (p *player) wait(dur time.Duration) bool {
	select {
	case <-time.After(dur):
		return true
	case <-p.context.Done():
		return false
	}
}

func (p *player) onError(msg string, err error) {
	p.onReport(core.Reports{{
		Name:     playerReport,
		Severity: core.Error,
		Message:  msg,
		Values: core.Values{
			"url":   p.config.URL,
			"error": err,
		},
	}})
}

func (p *player) onReport(reports core.Reports) {
	if p.config.OnReport != nil {
		p.config.OnReport(reports)
	}
}
