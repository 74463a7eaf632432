package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dot5enko/mvstore/io"
)

const EntryFileName = "mv.json"

// DirCatalog stores every view in its own directory, <root>/<name>/mv.json
// next to the segment files.
type DirCatalog struct {
	entries map[string]*Entry
	lock    sync.RWMutex

	root   string
	logger *slog.Logger
}

var _ Catalog = (*DirCatalog)(nil)

func NewDirCatalog(root string, logger *slog.Logger) *DirCatalog {
	if logger == nil {
		logger = slog.Default()
	}

	return &DirCatalog{
		entries: map[string]*Entry{},
		root:    root,
		logger:  logger,
	}
}

func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (c *DirCatalog) Root() string {
	return c.root
}

func (c *DirCatalog) getAbsStoragePath(segments ...string) string {
	pathSegments := []string{c.root}
	pathSegments = append(pathSegments, segments...)

	return filepath.Join(pathSegments...)
}

// Dir is the directory holding the files of view name.
func (c *DirCatalog) Dir(name string) string {
	return c.getAbsStoragePath(name)
}

func (c *DirCatalog) SegmentPath(name, segment string) string {
	return c.getAbsStoragePath(name, segment)
}

// EnsureDir creates the view directory if it doesn't exist yet.
func (c *DirCatalog) EnsureDir(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}

	dir := c.Dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("unable to create directory %s: %w", dir, err)
	}

	return dir, nil
}

// Register stores entry, replacing a previous version of the same view.
func (c *DirCatalog) Register(entry Entry) error {
	if _, err := c.EnsureDir(entry.Name); err != nil {
		return err
	}

	stored := entry.Clone()
	if err := c.writeEntry(stored); err != nil {
		return err
	}

	c.lock.Lock()
	c.entries[entry.Name] = &stored
	c.lock.Unlock()

	return nil
}

// Touch refreshes the last update time of a view.
func (c *DirCatalog) Touch(name string, at time.Time) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	existing, ok := c.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	updated := existing.Clone()
	updated.LastUpdate = at

	if err := c.writeEntry(updated); err != nil {
		return err
	}

	c.entries[name] = &updated

	return nil
}

func (c *DirCatalog) Get(name string) (Entry, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	e, ok := c.entries[name]
	if !ok {
		return Entry{}, false
	}

	return e.Clone(), true
}

func (c *DirCatalog) List(ctx context.Context) ([]Entry, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	result := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		result = append(result, e.Clone())
	}

	slices.SortFunc(result, func(a, b Entry) int {
		return strings.Compare(a.Name, b.Name)
	})

	return result, nil
}

// Remove drops the entry so no new reader can find the view. Segment files
// stay until DeleteStorage.
func (c *DirCatalog) Remove(ctx context.Context, name string) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if _, ok := c.entries[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	entryPath := c.getAbsStoragePath(name, EntryFileName)
	if err := os.Remove(entryPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("unable to remove %s: %w", entryPath, err)
	}

	delete(c.entries, name)

	return nil
}

// DeleteStorage removes the segment files of entry. The view directory goes
// too once nothing else is left in it, so files of a newer version written
// in the meantime survive.
func (c *DirCatalog) DeleteStorage(ctx context.Context, entry Entry) error {
	if err := ValidateName(entry.Name); err != nil {
		return err
	}

	var errs []error
	for _, segment := range entry.Segments {
		path := c.SegmentPath(entry.Name, segment)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("unable to remove segment %s: %w", path, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	dir := c.Dir(entry.Name)

	left, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("unable to read directory %s: %w", dir, err)
	}

	if len(left) > 0 {
		c.logger.Debug("mv directory kept", "mv", entry.Name, "files", len(left))
		return nil
	}

	if err := os.Remove(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("unable to remove directory %s: %w", dir, err)
	}

	return nil
}

func (c *DirCatalog) writeEntry(entry Entry) error {
	entryPath := c.getAbsStoragePath(entry.Name, EntryFileName)

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode entry %s: %w", entry.Name, err)
	}

	// readers never see a half written file
	tmp := entryPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("unable to write %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, entryPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("unable to replace %s: %w", entryPath, err)
	}

	return nil
}

// LoadFromDisk reads every <root>/<name>/mv.json. Broken entries are logged
// and skipped. Entries without a last update time get the file modification
// time.
func (c *DirCatalog) LoadFromDisk() error {
	dirEntries, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) { // no views yet
			return nil
		}
		return fmt.Errorf("unable to list catalog %s: %w", c.root, err)
	}

	loaded := map[string]*Entry{}

	for _, e := range dirEntries {
		if !e.IsDir() {
			continue
		}

		entry, loadErr := c.loadEntry(e.Name())
		if loadErr != nil {
			if errors.Is(loadErr, os.ErrNotExist) {
				continue
			}
			c.logger.Warn("skipping broken catalog entry", "mv", e.Name(), "error", loadErr)
			continue
		}

		loaded[entry.Name] = entry
		c.logger.Debug("loaded mv from disk", "mv", entry.Name, "last_update", entry.LastUpdate, "segments", len(entry.Segments))
	}

	c.lock.Lock()
	c.entries = loaded
	c.lock.Unlock()

	return nil
}

func (c *DirCatalog) loadEntry(dirName string) (*Entry, error) {
	entryPath := c.getAbsStoragePath(dirName, EntryFileName)

	content, err := os.ReadFile(entryPath)
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(content, &entry); err != nil {
		return nil, fmt.Errorf("unable to decode %s: %w", entryPath, err)
	}

	if entry.Name != dirName {
		return nil, fmt.Errorf("entry %s is stored in directory %s", entry.Name, dirName)
	}

	if entry.LastUpdate.IsZero() {
		modTime, statErr := io.FileModificationTime(entryPath)
		if statErr != nil {
			return nil, statErr
		}
		entry.LastUpdate = modTime
	}

	return &entry, nil
}
