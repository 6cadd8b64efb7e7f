package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

var (
	ErrInvalidName = errors.New("invalid filename")
	ErrNotFound    = errors.New("file not found")
)

// Entry is one item at the top level of the upload directory.
type Entry struct {
	Name  string
	Size  int64
	IsDir bool
}

// Store manages the files under one root directory. Every name passed in is
// resolved against the root and rejected if it points outside of it.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: filepath.Clean(root)}
}

func (s *Store) Root() string {
	return s.root
}

// Ensure creates the root directory if it does not exist.
func (s *Store) Ensure() error {
	if err := os.MkdirAll(s.root, dirPerm); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	return nil
}

// List returns the top-level entries sorted by name. A missing root is
// reported as empty.
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read upload directory: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))

	for _, de := range dirEntries {
		entry := Entry{Name: de.Name(), IsDir: de.IsDir()}

		if info, err := de.Info(); err == nil && !de.IsDir() {
			entry.Size = info.Size()
		}

		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return entries, nil
}

// Resolve returns the absolute path of name inside the root.
func (s *Store) Resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrInvalidName
	}

	path := filepath.Join(s.root, name)

	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidName
	}

	return path, nil
}

// Delete removes a file or a whole directory.
func (s *Store) Delete(name string) error {
	path, err := s.Resolve(name)
	if err != nil {
		return err
	}

	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}

	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", name, err)
	}

	if info.IsDir() {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}

	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}

	return nil
}

// UniquePath returns a path for name that does not exist yet, appending _1,
// _2, ... before the extension on collisions.
func (s *Store) UniquePath(name string) (string, error) {
	name = SanitizeName(name)

	path, err := s.Resolve(name)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for counter := 1; ; counter++ {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return path, nil
		} else if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", path, err)
		}

		path = filepath.Join(s.root, fmt.Sprintf("%s_%d%s", base, counter, ext))
	}
}

// Save copies r into a new file named after name and returns its path and
// size. A partial file is removed when the copy fails.
func (s *Store) Save(ctx context.Context, name string, r io.Reader) (string, int64, error) {
	if err := s.Ensure(); err != nil {
		return "", 0, err
	}

	path, err := s.UniquePath(name)
	if err != nil {
		return "", 0, err
	}

	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create target file: %w", err)
	}

	n, err := io.Copy(out, &ctxReader{ctx: ctx, r: r})
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(path)

		return "", n, fmt.Errorf("failed to write %s: %w", path, err)
	}

	return path, n, nil
}

// SanitizeName strips any directory part from name.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "unknown_file"
	}

	return name
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}
