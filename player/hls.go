package player

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/abema/netwatch/internal/thread"
	"github.com/grafov/m3u8"
	"golang.org/x/sync/errgroup"
)

type MediaPlaylist struct {
	URL string
	*m3u8.MediaPlaylist
}

func (p *MediaPlaylist) SegmentURLs() ([]string, error) {
	base, err := url.Parse(p.URL)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(p.Segments))
	for _, segment := range p.Segments {
		u, err := base.Parse(segment.URI)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u.String())
	}
	return urls, nil
}

// Playlists are the media playlists being played: the selected variant and
// its renditions.
type Playlists struct {
	Variant        *m3u8.Variant
	MediaPlaylists []*MediaPlaylist
}

func (p *Playlists) SegmentURLs() ([]string, error) {
	urls := make([]string, 0)
	for _, playlist := range p.MediaPlaylists {
		u, err := playlist.SegmentURLs()
		if err != nil {
			return nil, err
		}
		urls = append(urls, u...)
	}
	return urls, nil
}

func (p *Playlists) IsVOD() bool {
	for _, playlist := range p.MediaPlaylists {
		if !playlist.Closed {
			return false
		}
	}
	return true
}

func (p *Playlists) MaxTargetDuration() float64 {
	var dur float64
	for _, playlist := range p.MediaPlaylists {
		if playlist.TargetDuration > dur {
			dur = playlist.TargetDuration
		}
	}
	return dur
}

// selectVariant returns the variant with the highest bandwidth not above
// maxBandwidth, or the lowest one when all are above.
func selectVariant(variants []*m3u8.Variant, maxBandwidth int64) *m3u8.Variant {
	var best, lowest *m3u8.Variant
	for _, v := range variants {
		if v == nil {
			continue
		}
		if lowest == nil || v.Bandwidth < lowest.Bandwidth {
			lowest = v
		}
		if maxBandwidth != 0 && int64(v.Bandwidth) > maxBandwidth {
			continue
		}
		if best == nil || v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	if best == nil {
		return lowest
	}
	return best
}

type hlsPlaylistLoader struct {
	loader       loader
	timeout      time.Duration
	maxBandwidth int64
	master       *m3u8.MasterPlaylist
	masterURL    string
}

func newHLSPlaylistLoader(l loader, timeout time.Duration, maxBandwidth int64) *hlsPlaylistLoader {
	return &hlsPlaylistLoader{
		loader:       l,
		timeout:      timeout,
		maxBandwidth: maxBandwidth,
	}
}

func (d *hlsPlaylistLoader) Load(ctx context.Context, u string) (*Playlists, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if d.master == nil {
		data, loc, err := d.loader.Load(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("failed to load playlist: %s: %w", u, err)
		}
		dec, ptype, err := m3u8.DecodeFrom(bytes.NewReader(data), true)
		if err != nil {
			return nil, newPermanentError(fmt.Errorf("failed to decode playlist: %s: %w", u, err))
		}
		if ptype == m3u8.MEDIA {
			media := dec.(*m3u8.MediaPlaylist)
			removeNilSegments(media)
			return &Playlists{
				MediaPlaylists: []*MediaPlaylist{{URL: loc, MediaPlaylist: media}},
			}, nil
		}
		d.master = dec.(*m3u8.MasterPlaylist)
		d.masterURL = loc
	}

	variant := selectVariant(d.master.Variants, d.maxBandwidth)
	if variant == nil {
		return nil, newPermanentError(fmt.Errorf("no variant: %s", d.masterURL))
	}
	uris := append([]string{variant.URI}, renditionURIs(d.master, variant)...)

	playlists := &Playlists{
		Variant:        variant,
		MediaPlaylists: make([]*MediaPlaylist, len(uris)),
	}
	base, err := url.Parse(d.masterURL)
	if err != nil {
		return nil, err
	}
	eg := new(errgroup.Group)
	for i := range uris {
		i, uri := i, uris[i]
		eg.Go(thread.NoPanic(func() error {
			playlist, err := d.loadMediaPlaylist(ctx, base, uri)
			if err != nil {
				return err
			}
			playlists.MediaPlaylists[i] = playlist
			return nil
		}))
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return playlists, nil
}

// renditionURIs returns the URIs of the audio and subtitles renditions of
// variant. grafov/m3u8 attaches the EXT-X-MEDIA tags to a single variant, so
// every variant is searched.
func renditionURIs(master *m3u8.MasterPlaylist, variant *m3u8.Variant) []string {
	uris := make([]string, 0)
	seen := make(map[string]bool)
	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		for _, alt := range v.Alternatives {
			if alt == nil || alt.URI == "" || seen[alt.URI] {
				continue
			}
			if (alt.Type == "AUDIO" && alt.GroupId == variant.Audio) ||
				(alt.Type == "SUBTITLES" && alt.GroupId == variant.Subtitles) {
				seen[alt.URI] = true
				uris = append(uris, alt.URI)
			}
		}
	}
	return uris
}

func (d *hlsPlaylistLoader) loadMediaPlaylist(ctx context.Context, base *url.URL, u string) (*MediaPlaylist, error) {
	absolute, err := base.Parse(u)
	if err != nil {
		return nil, newPermanentError(fmt.Errorf("invalid URL format: %s: %w", u, err))
	}
	data, loc, err := d.loader.Load(ctx, absolute.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load media playlist: %s: %w", u, err)
	}
	dec, ptype, err := m3u8.DecodeFrom(bytes.NewReader(data), true)
	if err != nil {
		return nil, fmt.Errorf("failed to decode media playlist: %s: %w", u, err)
	}
	if ptype != m3u8.MEDIA {
		return nil, newPermanentError(fmt.Errorf("not a media playlist: %s", u))
	}
	media := dec.(*m3u8.MediaPlaylist)
	removeNilSegments(media)
	return &MediaPlaylist{URL: loc, MediaPlaylist: media}, nil
}

// removeNilSegments removes nil elements, because grafov/m3u8 returns nil-filled large slice.
// https://github.com/grafov/m3u8/issues/97
func removeNilSegments(media *m3u8.MediaPlaylist) {
	for i := range media.Segments {
		if media.Segments[i] == nil {
			media.Segments = media.Segments[:i]
			break
		}
	}
}
