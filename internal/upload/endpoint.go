package upload

import (
	"net/url"
	"strings"
)

const defaultEndpointPath = "gpstracker/api/locations/update"

// ResolveEndpoint normalizes a user-configured server URL into a
// fully-qualified update endpoint. A missing scheme defaults to https, and a
// URL that names neither an /update nor an /api/ path gets the standard
// endpoint path appended.
func ResolveEndpoint(serverURL string) (string, error) {
	target := strings.TrimSpace(serverURL)
	if target == "" {
		return "", &Error{Kind: KindMalformedURL, Body: serverURL}
	}

	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = "https://" + target
	}

	if !strings.Contains(target, "/update") && !strings.Contains(target, "/api/") {
		if strings.HasSuffix(target, "/") {
			target += defaultEndpointPath
		} else {
			target += "/" + defaultEndpointPath
		}
	}

	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" {
		return "", &Error{Kind: KindMalformedURL, Body: serverURL, Cause: err}
	}
	return target, nil
}
