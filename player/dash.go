package player

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abema/netwatch/internal/url"
	"github.com/zencoder/go-dash/mpd"
)

type Manifest struct {
	URL string
	*mpd.MPD
}

type DASHSegment struct {
	URL            string
	Initialization bool
	Time           uint64
	Duration       uint64
}

func (m *Manifest) BaseURL() (string, error) {
	if m.MPD.BaseURL != "" {
		return url.ResolveReference(m.URL, m.MPD.BaseURL)
	}
	return m.URL, nil
}

func (m *Manifest) IsDynamic() bool {
	return m.Type != nil && *m.Type == "dynamic"
}

// Segments returns the segments of the representation played in each
// adaptation set.
func (m *Manifest) Segments(maxBandwidth int64) ([]*DASHSegment, error) {
	baseURL, err := m.BaseURL()
	if err != nil {
		return nil, err
	}
	segments := make([]*DASHSegment, 0)
	for _, period := range m.Periods {
		for _, as := range period.AdaptationSets {
			rep := selectRepresentation(as.Representations, maxBandwidth)
			if rep == nil {
				continue
			}
			template := rep.SegmentTemplate
			if template == nil {
				template = as.SegmentTemplate
			}
			if template == nil {
				continue
			}
			s, err := templateSegments(baseURL, template, rep)
			if err != nil {
				return nil, err
			}
			segments = append(segments, s...)
		}
	}
	return segments, nil
}

func bandwidthOf(rep *mpd.Representation) int64 {
	if rep.Bandwidth == nil {
		return 0
	}
	return *rep.Bandwidth
}

// selectRepresentation returns the representation with the highest bandwidth
// not above maxBandwidth, or the lowest one when all are above.
func selectRepresentation(reps []*mpd.Representation, maxBandwidth int64) *mpd.Representation {
	var best, lowest *mpd.Representation
	for _, rep := range reps {
		if rep == nil {
			continue
		}
		bw := bandwidthOf(rep)
		if lowest == nil || bw < bandwidthOf(lowest) {
			lowest = rep
		}
		if maxBandwidth != 0 && bw > maxBandwidth {
			continue
		}
		if best == nil || bw > bandwidthOf(best) {
			best = rep
		}
	}
	if best == nil {
		return lowest
	}
	return best
}

func templateSegments(baseURL string, template *mpd.SegmentTemplate, rep *mpd.Representation) ([]*DASHSegment, error) {
	params := TemplateParams{Bandwidth: bandwidthOf(rep)}
	if rep.ID != nil {
		params.RepresentationID = *rep.ID
	}
	if template.StartNumber != nil {
		params.Number = *template.StartNumber
	}

	segments := make([]*DASHSegment, 0)
	if template.Initialization != nil {
		u, err := url.ResolveReference(baseURL, ResolveTemplate(*template.Initialization, params))
		if err != nil {
			return nil, err
		}
		segments = append(segments, &DASHSegment{URL: u, Initialization: true})
	}
	if template.SegmentTimeline == nil || template.Media == nil {
		return segments, nil
	}
	for _, s := range template.SegmentTimeline.Segments {
		n := 1
		if s.RepeatCount != nil {
			n = *s.RepeatCount + 1
		}
		if s.StartTime != nil {
			params.Time = *s.StartTime
		}
		for i := 0; i < n; i++ {
			u, err := url.ResolveReference(baseURL, ResolveTemplate(*template.Media, params))
			if err != nil {
				return nil, err
			}
			segments = append(segments, &DASHSegment{
				URL:      u,
				Time:     params.Time,
				Duration: s.Duration,
			})
			params.Time += s.Duration
			params.Number++
		}
	}
	return segments, nil
}

type TemplateParams struct {
	RepresentationID string
	Number           int64
	Bandwidth        int64
	Time             uint64
}

// ResolveTemplate substitutes the $identifiers$ of a segment template.
// Unknown identifiers are kept as they are.
func ResolveTemplate(format string, params TemplateParams) string {
	var b strings.Builder
	ss := strings.Split(format, "$")
	for i, s := range ss {
		switch {
		case i%2 == 0:
			b.WriteString(s)
		case s == "":
			b.WriteString("$")
		case s == "RepresentationID":
			b.WriteString(params.RepresentationID)
		case s == "Number":
			b.WriteString(strconv.FormatInt(params.Number, 10))
		case s == "Bandwidth":
			b.WriteString(strconv.FormatInt(params.Bandwidth, 10))
		case s == "Time":
			b.WriteString(strconv.FormatUint(params.Time, 10))
		default:
			b.WriteString("$" + s)
			if i == len(ss)-1 {
				b.WriteString("$")
			}
		}
	}
	return b.String()
}

type dashManifestLoader struct {
	loader   loader
	timeout  time.Duration
	location string
}

func newDASHManifestLoader(l loader, timeout time.Duration) *dashManifestLoader {
	return &dashManifestLoader{
		loader:  l,
		timeout: timeout,
	}
}

func (d *dashManifestLoader) Load(ctx context.Context, u string) (*Manifest, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if d.location != "" {
		u = d.location
	}
	data, loc, err := d.loader.Load(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %s: %w", u, err)
	}
	m, err := mpd.ReadFromString(string(data))
	if err != nil {
		return nil, newPermanentError(fmt.Errorf("failed to decode manifest: %s: %w", u, err))
	}
	if m.Location != "" {
		d.location = m.Location
	}
	return &Manifest{URL: loc, MPD: m}, nil
}
