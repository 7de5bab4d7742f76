package player

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abema/netwatch/host"
	"github.com/grafov/m3u8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMaster = "#EXTM3U\n" +
		"#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID=\"audio\",NAME=\"main\",DEFAULT=YES,URI=\"audio.m3u8\"\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=1280000,AUDIO=\"audio\"\n" +
		"media_0.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=2560000,AUDIO=\"audio\"\n" +
		"media_1.m3u8\n"
	testMedia = "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-TARGETDURATION:8\n" +
		"#EXT-X-MEDIA-SEQUENCE:100\n" +
		"#EXTINF:7.975,\n" +
		"segment_100.ts\n" +
		"#EXTINF:7.941,\n" +
		"segment_101.ts\n"
	testVODMedia = testMedia + "#EXT-X-ENDLIST\n"
)

func newHLSServer(t *testing.T, media string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/master.m3u8":
			w.Write([]byte(testMaster))
		case "/media_0.m3u8", "/media_1.m3u8", "/audio.m3u8", "/media.m3u8":
			w.Write([]byte(media))
		case "/redirect.m3u8":
			http.Redirect(w, r, "/media.m3u8", http.StatusFound)
		case "/broken.m3u8":
			w.Write([]byte("not a playlist"))
		default:
			if len(r.URL.Path) > 3 && r.URL.Path[len(r.URL.Path)-3:] == ".ts" {
				w.Write([]byte("segment"))
				return
			}
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSelectVariant(t *testing.T) {
	variants := []*m3u8.Variant{
		{URI: "low", VariantParams: m3u8.VariantParams{Bandwidth: 500000}},
		{URI: "high", VariantParams: m3u8.VariantParams{Bandwidth: 4000000}},
		{URI: "mid", VariantParams: m3u8.VariantParams{Bandwidth: 2000000}},
	}
	assert.Equal(t, "high", selectVariant(variants, 0).URI)
	assert.Equal(t, "mid", selectVariant(variants, 3000000).URI)
	assert.Equal(t, "mid", selectVariant(variants, 2000000).URI)
	assert.Equal(t, "low", selectVariant(variants, 100000).URI)
	assert.Nil(t, selectVariant(nil, 0))
}

func TestPlaylists(t *testing.T) {
	p := &Playlists{
		MediaPlaylists: []*MediaPlaylist{
			{
				URL: "https://localhost/foo/media_0.m3u8",
				MediaPlaylist: &m3u8.MediaPlaylist{
					Segments:       []*m3u8.MediaSegment{{URI: "segment_0_0.ts"}, {URI: "/bar/segment_0_1.ts"}},
					TargetDuration: 6,
					Closed:         true,
				},
			},
			{
				URL: "https://localhost/foo/audio.m3u8",
				MediaPlaylist: &m3u8.MediaPlaylist{
					Segments:       []*m3u8.MediaSegment{{URI: "audio_0.aac"}},
					TargetDuration: 5,
				},
			},
		},
	}
	urls, err := p.SegmentURLs()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://localhost/foo/segment_0_0.ts",
		"https://localhost/bar/segment_0_1.ts",
		"https://localhost/foo/audio_0.aac",
	}, urls)
	assert.Equal(t, 6.0, p.MaxTargetDuration())
	assert.False(t, p.IsVOD())
	p.MediaPlaylists[1].Closed = true
	assert.True(t, p.IsVOD())
}

func TestHLSPlaylistLoader(t *testing.T) {
	server := newHLSServer(t, testMedia)
	w := host.NewWindow(host.NewWindowConfig(server.URL))

	t.Run("master playlist", func(t *testing.T) {
		d := newHLSPlaylistLoader(newXHRLoader(w), time.Second, 2000000)
		playlists, err := d.Load(context.Background(), server.URL+"/master.m3u8")
		require.NoError(t, err)
		require.NotNil(t, playlists.Variant)
		assert.Equal(t, "media_0.m3u8", playlists.Variant.URI)
		require.Len(t, playlists.MediaPlaylists, 2)
		assert.Equal(t, server.URL+"/media_0.m3u8", playlists.MediaPlaylists[0].URL)
		assert.Equal(t, server.URL+"/audio.m3u8", playlists.MediaPlaylists[1].URL)
		require.Len(t, playlists.MediaPlaylists[0].Segments, 2)
		assert.Equal(t, "segment_100.ts", playlists.MediaPlaylists[0].Segments[0].URI)

		// the master playlist is loaded once
		playlists, err = d.Load(context.Background(), server.URL+"/master.m3u8")
		require.NoError(t, err)
		assert.Len(t, w.Performance.GetEntriesByName(server.URL+"/master.m3u8"), 1)
	})

	t.Run("single media playlist", func(t *testing.T) {
		d := newHLSPlaylistLoader(newXHRLoader(w), time.Second, 0)
		playlists, err := d.Load(context.Background(), server.URL+"/redirect.m3u8")
		require.NoError(t, err)
		assert.Nil(t, playlists.Variant)
		require.Len(t, playlists.MediaPlaylists, 1)
		assert.Equal(t, server.URL+"/media.m3u8", playlists.MediaPlaylists[0].URL)
	})

	t.Run("broken playlist", func(t *testing.T) {
		d := newHLSPlaylistLoader(newXHRLoader(w), time.Second, 0)
		_, err := d.Load(context.Background(), server.URL+"/broken.m3u8")
		require.Error(t, err)
		assert.ErrorAs(t, err, &permanentError{})
	})

	t.Run("not found", func(t *testing.T) {
		d := newHLSPlaylistLoader(newXHRLoader(w), time.Second, 0)
		_, err := d.Load(context.Background(), server.URL+"/missing.m3u8")
		require.Error(t, err)
		assert.ErrorAs(t, err, &permanentError{})
	})
}

func TestRenditionURIs(t *testing.T) {
	audio := &m3u8.Alternative{Type: "AUDIO", GroupId: "aac", URI: "audio.m3u8"}
	subs := &m3u8.Alternative{Type: "SUBTITLES", GroupId: "subs", URI: "subs.m3u8"}
	other := &m3u8.Alternative{Type: "AUDIO", GroupId: "ac3", URI: "ac3.m3u8"}
	master := &m3u8.MasterPlaylist{Variants: []*m3u8.Variant{
		{URI: "low.m3u8", VariantParams: m3u8.VariantParams{Audio: "aac", Alternatives: []*m3u8.Alternative{audio, subs, other}}},
		{URI: "high.m3u8", VariantParams: m3u8.VariantParams{Audio: "aac", Subtitles: "subs"}},
	}}
	assert.Equal(t, []string{"audio.m3u8"}, renditionURIs(master, master.Variants[0]))
	assert.Equal(t, []string{"audio.m3u8", "subs.m3u8"}, renditionURIs(master, master.Variants[1]))
}

func newMediaPlaylist(targetDuration float64, closed bool) *m3u8.MediaPlaylist {
	return &m3u8.MediaPlaylist{TargetDuration: targetDuration, Closed: closed}
}
