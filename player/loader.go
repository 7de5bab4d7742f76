package player

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/abema/netwatch/host"
	"github.com/patrickmn/go-cache"
)

type permanentError struct {
	parent error
}

func newPermanentError(parent error) error {
	return permanentError{parent: parent}
}

func (err permanentError) Error() string {
	return err.parent.Error()
}

func (err permanentError) Unwrap() error {
	return err.parent
}

type loader interface {
	// Load returns the body of u and the URL it was served from.
	Load(ctx context.Context, u string) ([]byte, string, error)
}

// xhrLoader loads through the XMLHttpRequest of a window, the way a player
// running in a page does.
type xhrLoader struct {
	window *host.Window
}

func newXHRLoader(w *host.Window) loader {
	return &xhrLoader{window: w}
}

func (l *xhrLoader) Load(ctx context.Context, u string) ([]byte, string, error) {
	x := l.window.NewXMLHttpRequest()
	x.SetContext(ctx)
	done := make(chan struct{})
	x.AddEventListener(host.EventLoadEnd, func(*host.XMLHttpRequest) {
		close(done)
	})
	if err := x.Open(http.MethodGet, u); err != nil {
		return nil, "", newPermanentError(err)
	}
	if err := x.Send(nil); err != nil {
		return nil, "", newPermanentError(err)
	}
	<-done

	status := x.Status()
	if status == 0 {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("network error: %s", u)
	}
	if status != http.StatusOK {
		err := fmt.Errorf("unexpected status code: %d", status)
		if status >= 400 && status < 500 {
			err = newPermanentError(err)
		}
		return nil, "", err
	}
	return x.Response(), x.ResponseURL(), nil
}

// locationCache remembers where manifests were redirected to, so that
// subsequent loads skip the redirect.
type locationCache struct {
	loader
	locations *cache.Cache
}

func newLocationCache(l loader, ttl time.Duration) *locationCache {
	return &locationCache{
		loader:    l,
		locations: cache.New(ttl, 2*ttl),
	}
}

func (c *locationCache) Load(ctx context.Context, u string) ([]byte, string, error) {
	via := u
	if loc, ok := c.locations.Get(u); ok {
		u = loc.(string)
	}
	data, loc, err := c.loader.Load(ctx, u)
	if err != nil {
		if u != via {
			c.locations.Delete(via)
		}
		return nil, "", err
	}
	if via != loc {
		c.locations.SetDefault(via, loc)
	}
	return data, loc, nil
}

func isPermanent(err error) bool {
	return errors.As(err, &permanentError{})
}
