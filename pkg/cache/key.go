package cache

import (
	"path"
	"strings"
)

// Key identifies a cached page. It is derived only from the inbound request
// path, which already encodes table, view and page through routing.
type Key struct {
	// Path is the inbound request path (e.g. "/milkspots/0")
	Path string
}

// NewKey creates a key for a request path.
func NewKey(requestPath string) Key {
	return Key{Path: requestPath}
}

// String returns the normalized key with its .json suffix.
// Format: /<clean path>.json
//
// Example:
//
//	/milkspots/0.json
//
// Dot segments are resolved before the suffix is added, so a key can never
// address a location above the store root.
func (k Key) String() string {
	p := path.Clean("/" + strings.TrimSpace(k.Path))
	if p == "/" {
		p = "/index"
	}
	return p + ".json"
}

// Under prefixes the key with a store root, mirroring the <cache-root><path>.json layout.
func (k Key) Under(root string) string {
	return strings.TrimRight(root, "/") + k.String()
}
