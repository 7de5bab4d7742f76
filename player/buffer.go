package player

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/abema/netwatch/internal/thread"
	backoff "github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// segmentBuffer loads the segments of the current manifest once each.
type segmentBuffer struct {
	loader     loader
	newBackOff func() backoff.BackOff
	timeout    time.Duration
	maxConc    int
	loaded     map[string]struct{}
}

func newSegmentBuffer(l loader, timeout time.Duration, newBackOff func() backoff.BackOff, maxConcurrency int) *segmentBuffer {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &segmentBuffer{
		loader:     l,
		newBackOff: newBackOff,
		timeout:    timeout,
		maxConc:    maxConcurrency,
		loaded:     make(map[string]struct{}),
	}
}

func (b *segmentBuffer) Len() int {
	return len(b.loaded)
}

// Sync loads the segments of urls not loaded yet and forgets the ones
// which are not listed anymore. It returns the number of loaded segments.
func (b *segmentBuffer) Sync(ctx context.Context, urls []string) (int, error) {
	listed := make(map[string]struct{}, len(urls))
	var mutex sync.Mutex
	loaded := make([]string, 0)
	eg := new(errgroup.Group)
	eg.SetLimit(b.maxConc)
	for i := range urls {
		u := urls[i]
		if _, ok := listed[u]; ok {
			continue
		}
		listed[u] = struct{}{}
		if _, ok := b.loaded[u]; ok {
			continue
		}
		eg.Go(thread.NoPanic(func() error {
			if err := b.load(ctx, u); err != nil {
				return err
			}
			mutex.Lock()
			defer mutex.Unlock()
			loaded = append(loaded, u)
			return nil
		}))
	}
	err := eg.Wait()
	for _, u := range loaded {
		b.loaded[u] = struct{}{}
	}
	for u := range b.loaded {
		if _, ok := listed[u]; !ok {
			delete(b.loaded, u)
		}
	}
	return len(loaded), err
}

func (b *segmentBuffer) load(ctx context.Context, u string) error {
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if b.newBackOff != nil {
		policy = b.newBackOff()
	}
	return backoff.RetryNotify(func() error {
		ctx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		if _, _, err := b.loader.Load(ctx, u); err != nil {
			err = fmt.Errorf("failed to load segment: %s: %w", u, err)
			if ctx.Err() != nil || isPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}, backoff.WithContext(policy, ctx), func(err error, _ time.Duration) {
		log.Printf("WARN: failed to load segment: %s: %s", u, err)
	})
}
