// Package mediatype resolves the local file extension for a remote
// resource by probing its Content-Type header.
package mediatype

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"
)

// ErrUnresolved means the probe could not determine an extension; the
// caller applies the role fallback. Never fatal.
var ErrUnresolved = errors.New("mediatype: extension could not be resolved")

// preferredExts breaks ties for MIME types that map to several
// extensions, favoring the conventional one.
var preferredExts = map[string]string{
	"video/mp4":       ".mp4",
	"audio/mpeg":      ".mp3",
	"video/quicktime": ".mov",
	"video/webm":      ".webm",
	"audio/mp4":       ".m4a",
	"audio/wav":       ".wav",
	"audio/x-wav":     ".wav",
	"audio/ogg":       ".ogg",
}

// Resolver probes URLs over HTTP.
type Resolver struct {
	client *http.Client
}

// NewResolver builds a resolver with a bounded-timeout HTTP client.
func NewResolver() *Resolver {
	return &Resolver{client: &http.Client{Timeout: 15 * time.Second}}
}

// NewResolverWithClient builds a resolver around an existing client.
func NewResolverWithClient(client *http.Client) *Resolver {
	return &Resolver{client: client}
}

// Resolve issues a HEAD request and maps the Content-Type to a
// filename extension. Probe failure, a missing header, and an unknown
// MIME type all return ErrUnresolved.
func (r *Resolver) Resolve(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnresolved, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnresolved, err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		return "", ErrUnresolved
	}

	return ExtensionFor(contentType)
}

// ExtensionFor maps a Content-Type value to a filename extension.
func ExtensionFor(contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnresolved, err)
	}

	if ext, ok := preferredExts[mediaType]; ok {
		return ext, nil
	}

	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return "", ErrUnresolved
	}
	return exts[0], nil
}
