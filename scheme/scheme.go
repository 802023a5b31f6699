// Package scheme resolves the app's custom URI scheme to files in the
// recording library, for in-app playback of persisted recordings.
package scheme

import (
	"errors"
	"net/url"
	"path/filepath"
	"strings"
)

// Name is the URI scheme recordings are addressed under, as in
// webcrec://recording-video-2026-01-02T15-04-05Z.avi.
const Name = "webcrec"

var (
	ErrBadScheme      = errors.New("scheme: not a " + Name + " URI")
	ErrOutsideLibrary = errors.New("scheme: path escapes the library")
)

// Resolver maps recording URIs to paths under one library root.
type Resolver struct {
	root string
}

func NewResolver(root string) *Resolver {
	return &Resolver{root: filepath.Clean(root)}
}

// Resolve percent-decodes the URI's path, translates separators for the
// host OS and anchors it under the library root. URIs that escape the
// root are rejected.
func (r *Resolver) Resolve(raw string) (string, error) {
	rest, ok := strings.CutPrefix(raw, Name+"://")
	if !ok {
		return "", ErrBadScheme
	}
	rest = strings.TrimPrefix(rest, "/")
	if rest == "" {
		return "", ErrOutsideLibrary
	}

	decoded, err := url.PathUnescape(rest)
	if err != nil {
		return "", err
	}
	native := filepath.FromSlash(decoded)
	if filepath.IsAbs(native) {
		return "", ErrOutsideLibrary
	}

	full := filepath.Join(r.root, native)
	rel, err := filepath.Rel(r.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideLibrary
	}
	return full, nil
}
