package url

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

var errNotAbsolute = errors.New("not an absolute URL")

func ResolveReference(base string, rel string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u, err := b.Parse(rel)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Normalize resolves u against base and drops the fragment, so that relative,
// absolute and fragment variants of one resource compare equal.
// u is returned unchanged when it cannot be resolved.
func Normalize(base string, u string) string {
	b, err := url.Parse(base)
	if err != nil {
		return u
	}
	resolved, err := b.Parse(u)
	if err != nil {
		return u
	}
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved.String()
}

func ExtNoError(u string) string {
	ext, _ := Ext(u)
	return ext
}

func Ext(u string) (string, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return "", err
	}
	return path.Ext(parsed.Path), nil
}

func parseAbsolute(u string) (*url.URL, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" || (parsed.Host == "" && parsed.Opaque == "") {
		return nil, errNotAbsolute
	}
	return parsed, nil
}

func IsValid(u string) bool {
	_, err := parseAbsolute(u)
	return err == nil
}

// PathName returns the path component of an absolute URL.
func PathName(u string) (string, error) {
	parsed, err := parseAbsolute(u)
	if err != nil {
		return "", err
	}
	if parsed.Opaque != "" {
		return parsed.Opaque, nil
	}
	return parsed.Path, nil
}

// Origin returns scheme://host[:port] with the default port of the scheme omitted.
func Origin(u string) (string, error) {
	parsed, err := parseAbsolute(u)
	if err != nil {
		return "", err
	}
	scheme := strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Hostname())
	port := parsed.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host, nil
}

func SameOrigin(a, b string) bool {
	oa, err := Origin(a)
	if err != nil {
		return false
	}
	ob, err := Origin(b)
	if err != nil {
		return false
	}
	return oa == ob
}
