// Package content reads and writes MDX files inside the sandboxed content
// root. Every operation validates its path first.
package content

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cms-go/internal/cms"
	"cms-go/internal/sandbox"
)

// DefaultMaxFileSize caps reads and writes of a single file.
const DefaultMaxFileSize = 1 << 20

var (
	// ErrDestructiveDisabled is returned by destructive operations unless
	// they were enabled at startup.
	ErrDestructiveDisabled = errors.New("destructive content operations are disabled")

	// ErrExists is returned by Create when the target file already exists.
	ErrExists = errors.New("content file already exists")

	// ErrTooLarge is returned when a file exceeds the size cap.
	ErrTooLarge = errors.New("content file too large")
)

// Files performs sandboxed file operations.
type Files struct {
	sb               *sandbox.Sandbox
	allowDestructive bool
	maxSize          int64
	logger           cms.Logger
}

// NewFiles creates Files over sb. allowDestructive gates DeleteDir.
func NewFiles(sb *sandbox.Sandbox, allowDestructive bool, logger cms.Logger) *Files {
	return &Files{
		sb:               sb,
		allowDestructive: allowDestructive,
		maxSize:          DefaultMaxFileSize,
		logger:           logger,
	}
}

// Read returns the contents of an existing file.
func (f *Files) Read(rel string) ([]byte, error) {
	tok, err := f.sb.ValidateReadPath(rel)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(tok.Path())
	if err != nil {
		return nil, fmt.Errorf("opening content file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content file: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, ErrTooLarge
	}
	return data, nil
}

// Write replaces or creates a file whose directory already exists.
func (f *Files) Write(rel string, data []byte) error {
	if int64(len(data)) > f.maxSize {
		return ErrTooLarge
	}
	tok, err := f.sb.ValidateWritePath(rel)
	if err != nil {
		return err
	}
	if err := writeFile(tok.Path(), data); err != nil {
		return err
	}
	f.logger.Info("content file written", "path", rel, "bytes", len(data))
	return nil
}

// Create writes a new file, creating missing parent directories.
func (f *Files) Create(rel string, data []byte) error {
	if int64(len(data)) > f.maxSize {
		return ErrTooLarge
	}
	tok, err := f.sb.ValidateCreatePath(rel)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(tok.Path()); err == nil {
		return ErrExists
	}
	if err := os.MkdirAll(filepath.Dir(tok.Path()), 0755); err != nil {
		return fmt.Errorf("creating content directories: %w", err)
	}

	// The parents exist now; confirm nothing swapped one for a link.
	tok, err = f.sb.ValidateWritePath(rel)
	if err != nil {
		return err
	}
	if err := writeFile(tok.Path(), data); err != nil {
		return err
	}
	f.logger.Info("content file created", "path", rel, "bytes", len(data))
	return nil
}

// DeleteDir removes a directory below the root and everything in it.
func (f *Files) DeleteDir(rel string) error {
	if !f.allowDestructive {
		return ErrDestructiveDisabled
	}
	tok, err := f.sb.ValidateDirectoryPath(rel)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(tok.Path()); err != nil {
		return fmt.Errorf("removing content directory: %w", err)
	}
	f.logger.Warn("content directory deleted", "path", rel)
	return nil
}

// List returns the relative paths of every file with the approved
// extension below rel, sorted. An empty rel lists the whole root.
// Symlinks are not followed.
func (f *Files) List(rel string) ([]string, error) {
	base := f.sb.Root()
	if strings.Trim(rel, "/") != "" {
		tok, err := f.sb.ValidateDirectoryPath(rel)
		if err != nil {
			return nil, err
		}
		base = tok.Path()
	}

	realRoot, err := filepath.EvalSymlinks(f.sb.Root())
	if err != nil {
		return nil, sandbox.ErrInvalidPath
	}
	realBase, err := filepath.EvalSymlinks(base)
	if err != nil {
		return nil, sandbox.ErrInvalidPath
	}

	var out []string
	err = filepath.WalkDir(realBase, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 || d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), f.sb.Extension()) && len(d.Name()) > len(f.sb.Extension()) {
			r, err := filepath.Rel(realRoot, p)
			if err != nil {
				return err
			}
			out = append(out, filepath.ToSlash(r))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing content: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// writeFile writes data to a temp file in the destination directory and
// renames it into place.
func writeFile(destPath string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
