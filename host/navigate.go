package host

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/abema/netwatch/internal/thread"
	"github.com/abema/netwatch/internal/url"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

const maxSubresourceConcurrency = 6

type Subresource struct {
	URL       string
	Initiator string
}

type Document struct {
	URL          string
	Status       int
	Subresources []Subresource
}

// Navigate loads the document at u, makes it the window's location and
// then loads the sub-resources it references. Sub-resource failures are
// logged and do not fail the navigation.
func (w *Window) Navigate(ctx context.Context, u string) (*Document, error) {
	res, err := w.load(ctx, &transfer{
		method:    http.MethodGet,
		url:       u,
		initiator: InitiatorDocument,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %s: %w", u, err)
	}
	w.setLocation(res.url)

	doc := &Document{
		URL:    res.url,
		Status: res.status,
	}
	if !strings.HasPrefix(res.header.Get("Content-Type"), "text/html") {
		return doc, nil
	}
	root, err := html.Parse(bytes.NewReader(res.body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %s: %w", res.url, err)
	}
	doc.Subresources = findSubresources(res.url, root)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(maxSubresourceConcurrency)
	for i := range doc.Subresources {
		sub := doc.Subresources[i]
		eg.Go(thread.NoPanic(func() error {
			_, err := w.load(ctx, &transfer{
				method:    http.MethodGet,
				url:       sub.URL,
				initiator: sub.Initiator,
			})
			if err != nil {
				log.Printf("WARN: failed to load resource: %s: %s", sub.URL, err)
			}
			return nil
		}))
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return doc, nil
}

func findSubresources(base string, root *html.Node) []Subresource {
	subs := make([]Subresource, 0)
	seen := make(map[string]bool)
	add := func(ref, initiator string) {
		if ref == "" {
			return
		}
		u := url.Normalize(base, ref)
		if seen[u] {
			return
		}
		seen[u] = true
		subs = append(subs, Subresource{URL: u, Initiator: initiator})
	}
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "img":
				add(attr(n, "src"), InitiatorImg)
			case "script":
				add(attr(n, "src"), InitiatorScript)
			case "link":
				switch strings.ToLower(attr(n, "rel")) {
				case "stylesheet", "icon", "shortcut icon", "preload":
					add(attr(n, "href"), InitiatorLink)
				}
			case "audio", "video":
				add(attr(n, "src"), n.Data)
			case "source":
				if n.Parent != nil && (n.Parent.Data == "audio" || n.Parent.Data == "video") {
					add(attr(n, "src"), n.Parent.Data)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	return subs
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}
