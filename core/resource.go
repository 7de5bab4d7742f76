package core

import (
	"fmt"

	"github.com/abema/netwatch/host"
	"github.com/abema/netwatch/internal/strings"
	"github.com/abema/netwatch/internal/url"
)

type ResourceKind int

const (
	ResourceDocument ResourceKind = iota
	ResourceXHR
	ResourceFetch
	ResourceBeacon
	ResourceCSS
	ResourceJS
	ResourceImage
	ResourceFont
	ResourceMedia
	ResourceOther
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceDocument:
		return "document"
	case ResourceXHR:
		return "xhr"
	case ResourceFetch:
		return "fetch"
	case ResourceBeacon:
		return "beacon"
	case ResourceCSS:
		return "css"
	case ResourceJS:
		return "js"
	case ResourceImage:
		return "image"
	case ResourceFont:
		return "font"
	case ResourceMedia:
		return "media"
	}
	return "other"
}

func (k ResourceKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// MessageReporter receives diagnostics about the agent's own inputs.
type MessageReporter interface {
	AddMessage(message string)
}

type resourceRule struct {
	kind  ResourceKind
	match func(initiator, path string) bool
}

func initiatorIs(labels ...string) func(initiator, path string) bool {
	return func(initiator, _ string) bool {
		return strings.ContainsIn(initiator, labels)
	}
}

func pathEndsWith(suffixes ...string) func(initiator, path string) bool {
	return func(_, path string) bool {
		return strings.HasSuffixFold(path, suffixes...)
	}
}

func either(a, b func(initiator, path string) bool) func(initiator, path string) bool {
	return func(initiator, path string) bool {
		return a(initiator, path) || b(initiator, path)
	}
}

// Evaluated in order; the first match wins.
var resourceRules = []resourceRule{
	{ResourceDocument, initiatorIs(host.InitiatorDocument)},
	{ResourceXHR, initiatorIs(host.InitiatorXMLHttpRequest)},
	{ResourceFetch, initiatorIs(host.InitiatorFetch)},
	{ResourceBeacon, initiatorIs(host.InitiatorBeacon)},
	{ResourceCSS, pathEndsWith(".css")},
	{ResourceJS, pathEndsWith(".js")},
	{ResourceImage, either(
		initiatorIs("image", host.InitiatorImg, "icon"),
		pathEndsWith(".gif", ".jpg", ".jpeg", ".tiff", ".png", ".svg", ".ico"),
	)},
	{ResourceFont, pathEndsWith(".woff", ".eot", ".woff2", ".ttf")},
	{ResourceMedia, either(
		initiatorIs(host.InitiatorAudio, host.InitiatorVideo),
		pathEndsWith(".mp3", ".mp4"),
	)},
}

// ComputeResourceKind classifies the resource measured by rec.
// A record whose name is not an absolute URL is reported to reporter and
// classified as ResourceOther.
func ComputeResourceKind(rec *host.TimingRecord, reporter MessageReporter) ResourceKind {
	path, err := url.PathName(rec.Name)
	if err != nil {
		if reporter != nil {
			reporter.AddMessage(fmt.Sprintf("Failed to construct URL for \"%s\"", rec.Name))
		}
		return ResourceOther
	}
	for _, rule := range resourceRules {
		if rule.match(rec.InitiatorType, path) {
			return rule.kind
		}
	}
	return ResourceOther
}
