package util

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Common timeout durations
const (
	DefaultFetchTimeout   = 5 * time.Second
	DefaultConnectTimeout = 3 * time.Second
	ShortTimeout          = 2 * time.Second
)

// NormalizeURL trims whitespace and trailing slashes and defaults the scheme
// to http:// when none is given, so config values like "portal.campus.edu:8080"
// work as base URLs.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	return strings.TrimRight(raw, "/")
}

// SocketURL converts an http(s) base URL into its ws(s) counterpart and
// appends the given path and query values.
func SocketURL(base, path string, query url.Values) (string, error) {
	u, err := url.Parse(NormalizeURL(base))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = path
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// WriteJSONFile writes a JSON object to a file, creating parent directories if needed.
func WriteJSONFile(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
