package stream

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveEndpoint returns the WebSocket address of the monitoring stream.
// In development the fixed devURL is used. Otherwise the address is derived
// from baseURL: same host, wss when baseURL is https, ws otherwise.
func ResolveEndpoint(development bool, baseURL, devURL, path string) (string, error) {
	if development {
		if devURL == "" {
			return "", fmt.Errorf("development stream URL is empty")
		}
		return devURL, nil
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base URL %q has no host", baseURL)
	}

	scheme := "ws"
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		scheme = "wss"
	}

	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return (&url.URL{Scheme: scheme, Host: u.Host, Path: path}).String(), nil
}
