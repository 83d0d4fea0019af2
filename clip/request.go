package clip

import (
	"fmt"
	"net/url"
	"strings"
)

// RawRequest is the untrusted clip request as decoded from a client.
// Pointers distinguish a missing offset from zero.
type RawRequest struct {
	URL   string `json:"url"`
	Start *int   `json:"start"`
	End   *int   `json:"end"`
}

// Request is a validated clip request. Offsets are whole seconds.
type Request struct {
	URL   string `json:"url"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Duration is the requested clip length in seconds.
func (r Request) Duration() int { return r.End - r.Start }

func (r Request) String() string {
	return fmt.Sprintf("url=%s start=%d end=%d", r.URL, r.Start, r.End)
}

// Validate turns a RawRequest into a Request. Rules are checked in order and
// the first failure wins. No network access happens here.
func Validate(raw RawRequest) (Request, error) {
	u, err := ValidateURL(raw.URL)
	if err != nil {
		return Request{}, err
	}
	if raw.Start == nil {
		return Request{}, ValidationError("start", "start is required")
	}
	if raw.End == nil {
		return Request{}, ValidationError("end", "end is required")
	}
	if err := ValidateRange(*raw.Start, *raw.End); err != nil {
		return Request{}, err
	}
	return Request{URL: u, Start: *raw.Start, End: *raw.End}, nil
}

// ValidateURL accepts absolute http(s) URLs with a host.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ValidationError("url", "url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", ValidationError("url", "url must be an absolute URL with scheme and host")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ValidationError("url", "url scheme must be http or https")
	}
	return u.String(), nil
}

// ValidateRange checks start >= 0, end >= 0 and end > start, in that order.
func ValidateRange(start, end int) error {
	if start < 0 {
		return ValidationError("start", "start must be non-negative")
	}
	if end < 0 {
		return ValidationError("end", "end must be non-negative")
	}
	if end <= start {
		return ValidationError("end", "end must be greater than start")
	}
	return nil
}
