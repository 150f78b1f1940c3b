package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

var errBadOrigin = errors.New("origin must be http(s)://host[:port]")

// origin is the scheme and host pair a browser sends in the Origin header.
// Both parts are lower case and the scheme's default port is dropped, so
// "HTTP://Example.com:80" and "http://example.com" compare equal.
type origin struct {
	scheme string
	host   string
}

func (o origin) String() string { return o.scheme + "://" + o.host }

func parseOrigin(raw string) (origin, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return origin{}, fmt.Errorf("%w: %v", errBadOrigin, err)
	}
	if u.Opaque != "" || u.User != nil || u.Host == "" || (u.Path != "" && u.Path != "/") {
		return origin{}, errBadOrigin
	}

	o := origin{scheme: strings.ToLower(u.Scheme), host: strings.ToLower(u.Host)}
	var defaultPort string
	switch o.scheme {
	case "http":
		defaultPort = "80"
	case "https":
		defaultPort = "443"
	default:
		return origin{}, errBadOrigin
	}
	if u.Port() == defaultPort {
		o.host = strings.TrimSuffix(o.host, ":"+defaultPort)
	}
	return o, nil
}

// originPolicy decides which browser origins may open the WebSocket gateway.
// It is immutable after construction.
type originPolicy struct {
	allowAny bool
	allowed  map[origin]struct{}
	logger   *slog.Logger
}

// newOriginPolicy builds a policy from configured entries. "*" admits every
// well-formed origin, blank entries are skipped and malformed ones are logged
// and dropped.
func newOriginPolicy(entries []string, logger *slog.Logger) *originPolicy {
	p := &originPolicy{allowed: make(map[origin]struct{}, len(entries)), logger: logger}
	for _, entry := range entries {
		switch entry = strings.TrimSpace(entry); entry {
		case "":
			continue
		case "*":
			p.allowAny = true
			continue
		}
		o, err := parseOrigin(entry)
		if err != nil {
			logger.Warn("ignoring configured origin", "origin", entry, "err", err)
			continue
		}
		p.allowed[o] = struct{}{}
	}
	return p
}

func (p *originPolicy) allows(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" {
		return false
	}
	o, err := parseOrigin(header)
	if err != nil {
		return false
	}
	if p.allowAny {
		return true
	}
	_, ok := p.allowed[o]
	return ok
}

// check is the upgrader's CheckOrigin hook.
func (p *originPolicy) check(r *http.Request) bool {
	if p.allows(r) {
		return true
	}
	p.logger.Warn("websocket origin rejected", "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
	return false
}
