// Package sandbox validates editor-supplied relative paths against one
// approved content root and one approved file extension.
//
// Every check resolves symlinks on the final path as well as on the root,
// so a link inside the tree that points outside it is rejected even though
// its lexical path looks harmless. All failures return ErrInvalidPath; the
// specific reason is only logged at debug level.
//
// A Token proves the path was inside the root when it was validated. The
// filesystem can change between validation and use; callers accept that
// race.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cms-go/internal/cms"
)

// ErrInvalidPath is the only error returned by the validators.
var ErrInvalidPath = errors.New("invalid path")

// Token is a validated absolute path.
type Token struct {
	path string
}

// Path returns the absolute path.
func (t Token) Path() string { return t.path }

func (t Token) String() string { return t.path }

// Sandbox validates paths relative to Root.
type Sandbox struct {
	root   string
	ext    string
	logger cms.Logger
}

// New creates a Sandbox for root and ext. ext must include the leading dot.
// root does not have to exist yet; validation fails until it does.
func New(root, ext string, logger cms.Logger) (*Sandbox, error) {
	if root == "" {
		return nil, errors.New("sandbox root must not be empty")
	}
	if len(ext) < 2 || ext[0] != '.' {
		return nil, fmt.Errorf("sandbox extension %q must start with a dot", ext)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving sandbox root: %w", err)
	}
	return &Sandbox{root: abs, ext: ext, logger: logger}, nil
}

// Root returns the absolute, unresolved root directory.
func (s *Sandbox) Root() string { return s.root }

// Extension returns the approved extension.
func (s *Sandbox) Extension() string { return s.ext }

func (s *Sandbox) reject(op, rel, reason string) (Token, error) {
	s.logger.Debug("sandbox rejected path", "op", op, "path", rel, "reason", reason)
	return Token{}, ErrInvalidPath
}

// ValidateReadPath approves an existing regular file with the approved
// extension whose resolved location is inside the resolved root.
func (s *Sandbox) ValidateReadPath(rel string) (Token, error) {
	const op = "read"

	joined, reason := s.join(rel)
	if reason != "" {
		return s.reject(op, rel, reason)
	}
	if !s.hasExt(joined) {
		return s.reject(op, rel, "extension not approved")
	}

	realRoot, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		return s.reject(op, rel, "root does not resolve")
	}
	real, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return s.reject(op, rel, "target does not resolve")
	}
	if !strictlyWithin(realRoot, real) {
		return s.reject(op, rel, "target resolves outside root")
	}
	if !s.hasExt(real) {
		return s.reject(op, rel, "resolved extension not approved")
	}

	info, err := os.Stat(real)
	if err != nil || !info.Mode().IsRegular() {
		return s.reject(op, rel, "target is not a regular file")
	}
	return Token{path: real}, nil
}

// ValidateWritePath approves a file whose parent directory exists inside
// the root. The target need not exist; if it does, it must itself resolve
// inside the root. The token is the resolved parent plus the literal name.
func (s *Sandbox) ValidateWritePath(rel string) (Token, error) {
	const op = "write"

	joined, reason := s.join(rel)
	if reason != "" {
		return s.reject(op, rel, reason)
	}
	name := filepath.Base(joined)
	if !s.hasExt(name) {
		return s.reject(op, rel, "extension not approved")
	}

	realRoot, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		return s.reject(op, rel, "root does not resolve")
	}
	realParent, err := filepath.EvalSymlinks(filepath.Dir(joined))
	if err != nil {
		return s.reject(op, rel, "parent does not resolve")
	}
	if !within(realRoot, realParent) {
		return s.reject(op, rel, "parent resolves outside root")
	}
	if info, err := os.Stat(realParent); err != nil || !info.IsDir() {
		return s.reject(op, rel, "parent is not a directory")
	}

	target := filepath.Join(realParent, name)
	if _, err := os.Lstat(target); err == nil {
		real, err := filepath.EvalSymlinks(target)
		if err != nil {
			return s.reject(op, rel, "existing target does not resolve")
		}
		if !strictlyWithin(realRoot, real) {
			return s.reject(op, rel, "existing target resolves outside root")
		}
		if info, err := os.Stat(real); err != nil || !info.Mode().IsRegular() {
			return s.reject(op, rel, "existing target is not a regular file")
		}
	}
	return Token{path: target}, nil
}

// ValidateCreatePath approves a new file whose parents may not exist yet.
// Only the root must exist. The nearest existing ancestor is resolved and
// must lie inside the root; the token is that ancestor plus the remaining
// literal components.
func (s *Sandbox) ValidateCreatePath(rel string) (Token, error) {
	const op = "create"

	joined, reason := s.join(rel)
	if reason != "" {
		return s.reject(op, rel, reason)
	}
	name := filepath.Base(joined)
	if !s.hasExt(name) {
		return s.reject(op, rel, "filename empty or extension not approved")
	}

	realRoot, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		return s.reject(op, rel, "root does not resolve")
	}

	resolved, ok := resolveWithAncestors(joined, s.root)
	if !ok {
		return s.reject(op, rel, "no existing ancestor resolves")
	}
	if !strictlyWithin(realRoot, resolved) {
		return s.reject(op, rel, "target resolves outside root")
	}
	if info, err := os.Stat(resolved); err == nil && !info.Mode().IsRegular() {
		return s.reject(op, rel, "existing target is not a regular file")
	}
	return Token{path: resolved}, nil
}

// ValidateDirectoryPath approves an existing directory strictly inside the
// root. The root itself is never approved.
func (s *Sandbox) ValidateDirectoryPath(rel string) (Token, error) {
	const op = "directory"

	joined, reason := s.join(rel)
	if reason != "" {
		return s.reject(op, rel, reason)
	}

	realRoot, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		return s.reject(op, rel, "root does not resolve")
	}
	real, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return s.reject(op, rel, "directory does not resolve")
	}
	if !strictlyWithin(realRoot, real) {
		return s.reject(op, rel, "directory is the root or outside it")
	}
	if info, err := os.Stat(real); err != nil || !info.IsDir() {
		return s.reject(op, rel, "target is not a directory")
	}
	return Token{path: real}, nil
}

// join strips leading slashes, joins rel onto the root and checks the
// lexical result stays strictly inside it. A non-empty reason means reject.
func (s *Sandbox) join(rel string) (string, string) {
	if strings.ContainsRune(rel, 0) {
		return "", "path contains NUL"
	}
	rel = strings.TrimLeft(rel, "/")
	if strings.TrimSpace(rel) == "" {
		return "", "empty path"
	}
	joined := filepath.Join(s.root, rel)
	if !strictlyWithin(s.root, joined) {
		return "", "path escapes root lexically"
	}
	return joined, ""
}

// hasExt reports whether the base name carries the approved extension with
// a non-empty stem.
func (s *Sandbox) hasExt(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, s.ext) && len(name) > len(s.ext)
}

// within reports whether target is base or below it.
func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// strictlyWithin reports whether target is below base and not base itself.
func strictlyWithin(base, target string) bool {
	return within(base, target) && filepath.Clean(base) != filepath.Clean(target)
}

// resolveWithAncestors resolves the longest existing prefix of path and
// appends the remaining components literally. It does not walk above stop.
func resolveWithAncestors(path, stop string) (string, bool) {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real, true
	}

	current := path
	var missing []string
	for within(stop, current) {
		if _, err := os.Lstat(current); err == nil {
			// Exists but does not resolve: a dangling symlink.
			return "", false
		}
		missing = append(missing, filepath.Base(current))
		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		current = parent

		if real, err := filepath.EvalSymlinks(current); err == nil {
			// Missing components can only be created under a directory.
			if info, err := os.Stat(real); err != nil || !info.IsDir() {
				return "", false
			}
			for i := len(missing) - 1; i >= 0; i-- {
				real = filepath.Join(real, missing[i])
			}
			return real, true
		}
	}
	return "", false
}
