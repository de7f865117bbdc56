// Package output normalizes a user-supplied output path into a
// concrete absolute file path with a definite extension.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultExt = ".mp4"

// Resolver applies the output path rules and guarantees the parent
// directory exists.
type Resolver struct {
	stat     func(string) (os.FileInfo, error)
	mkdirAll func(string, os.FileMode) error
	getwd    func() (string, error)
}

// NewResolver builds a resolver using real OS dependencies.
func NewResolver() *Resolver {
	return &Resolver{
		stat:     os.Stat,
		mkdirAll: os.MkdirAll,
		getwd:    os.Getwd,
	}
}

// Resolve maps the requested path to the final output path. Rules, in
// order: blank input resolves to the working directory; a directory or
// a path without a suffix receives a synthesized "output_<id>.mp4"
// filename; a filename whose suffix is an empty dot is rewritten to
// ".mp4"; anything else is used as-is, trimmed. The result is always
// absolute and its parent directory is created.
func (r *Resolver) Resolve(requested, sessionID string) (string, error) {
	path := strings.TrimSpace(requested)
	if path == "" {
		cwd, err := r.getwd()
		if err != nil {
			return "", fmt.Errorf("output: resolve working directory: %w", err)
		}
		path = cwd
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("output: absolutize %q: %w", path, err)
	}
	path = abs

	ext := filepath.Ext(path)
	switch {
	case r.isDir(path) || ext == "":
		path = filepath.Join(path, fmt.Sprintf("output_%s%s", sessionID, defaultExt))
	case strings.TrimSpace(strings.ReplaceAll(ext, ".", "")) == "":
		path = strings.TrimSuffix(path, ext) + defaultExt
	}

	if err := r.mkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("output: create parent of %q: %w", path, err)
	}
	return path, nil
}

// isDir reports whether path exists and is a directory.
func (r *Resolver) isDir(path string) bool {
	info, err := r.stat(path)
	return err == nil && info.IsDir()
}

// NewResolverForTests builds a resolver with injectable dependencies.
func NewResolverForTests(
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	getwd func() (string, error),
) *Resolver {
	return &Resolver{stat: stat, mkdirAll: mkdirAll, getwd: getwd}
}
