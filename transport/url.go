package transport

import (
	"fmt"
	"net/url"
)

// DefaultBaseURL is the Clauderon server address used when none is
// configured.
const DefaultBaseURL = "http://127.0.0.1:3030"

// ConsoleURL returns the WebSocket URL for the console stream of the given
// session. base may use an http, https, ws or wss scheme; http(s) is
// rewritten to ws(s).
func ConsoleURL(base, sessionID string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("session id required")
	}
	u, err := wsBase(base)
	if err != nil {
		return "", err
	}
	u.Path = joinPath(u.Path, "ws/console")
	// The session id is appended after serializing so that characters like
	// "/" inside the id stay escaped.
	return u.String() + "/" + url.PathEscape(sessionID), nil
}

// EventsURL returns the WebSocket URL for the server's event stream.
func EventsURL(base string) (string, error) {
	u, err := wsBase(base)
	if err != nil {
		return "", err
	}
	u.Path = joinPath(u.Path, "ws/events")
	return u.String(), nil
}

// wsBase parses base and normalizes its scheme to ws or wss. The base is
// always passed in explicitly; nothing here reads ambient environment.
func wsBase(base string) (*url.URL, error) {
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported scheme %q in base url %q", u.Scheme, base)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host in base url %q", base)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func joinPath(prefix, rest string) string {
	if prefix == "" || prefix == "/" {
		return "/" + rest
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix + rest
	}
	return prefix + "/" + rest
}
