package plugin

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"
)

// ErrNotFound is returned when no search path entry provides an extension
var ErrNotFound = errors.New("extension not found")

// ErrInvalidName is returned for names that are empty or escape an entry
var ErrInvalidName = errors.New("invalid extension name")

// DefaultArchiveSuffixes are the bundle formats the loader can look inside
var DefaultArchiveSuffixes = []string{".egg", ".whl", ".zip"}

// Loader resolves extensions by name across a SearchPath.
//
// Every (entry, name) miss is remembered so repeated lookups do not touch
// the filesystem again. Call Invalidate after the set of usable entries
// changes, e.g. after InstallArchiveSupport.
type Loader struct {
	mu       sync.Mutex
	archives bool
	suffixes []string
	misses   map[missKey]struct{}
}

type missKey struct {
	entry, name string
}

// NewLoader returns a loader that only matches files and directories.
// Archive members become resolvable after InstallArchiveSupport.
func NewLoader() *Loader {
	return &Loader{
		suffixes: DefaultArchiveSuffixes,
		misses:   make(map[missKey]struct{}),
	}
}

// InstallArchiveSupport lets the loader resolve members inside bundle archives
func (l *Loader) InstallArchiveSupport() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.archives = true
}

// ArchiveSupport reports whether archive members are resolvable
func (l *Loader) ArchiveSupport() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.archives
}

// Invalidate forgets all cached misses
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.misses = make(map[missKey]struct{})
}

// CachedMisses returns the number of remembered misses
func (l *Loader) CachedMisses() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.misses)
}

// Resolve returns a handle for name from the highest-priority entry of sp
// that provides it, or ErrNotFound.
func (l *Loader) Resolve(sp SearchPath, name string) (*Handle, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	for _, entry := range sp.entries {
		key := missKey{entry: entry, name: clean}

		l.mu.Lock()
		_, missed := l.misses[key]
		archives := l.archives
		l.mu.Unlock()
		if missed {
			continue
		}

		h, err := l.lookup(entry, clean, archives)
		if err != nil {
			return nil, err
		}
		if h != nil {
			return h, nil
		}

		l.mu.Lock()
		l.misses[key] = struct{}{}
		l.mu.Unlock()
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// lookup checks a single entry. A nil handle with nil error is a miss.
func (l *Loader) lookup(entry, name string, archives bool) (*Handle, error) {
	info, err := os.Stat(entry)
	if err != nil {
		// Entries may disappear after registration; treat as a miss.
		return nil, nil
	}

	if info.IsDir() {
		p := filepath.Join(entry, filepath.FromSlash(name))
		if _, err := os.Stat(p); err == nil {
			return &Handle{Name: name, Origin: entry, Path: p}, nil
		}
		return nil, nil
	}

	base := filepath.Base(entry)
	if base == name || strings.TrimSuffix(base, filepath.Ext(base)) == name {
		return &Handle{Name: name, Origin: entry, Path: entry}, nil
	}

	if !archives || !hasSuffix(base, l.suffixes) {
		return nil, nil
	}
	member, err := findMember(entry, name)
	if err != nil {
		return nil, fmt.Errorf("read bundle %s: %w", entry, err)
	}
	if member == "" {
		return nil, nil
	}
	return &Handle{Name: name, Origin: entry, Path: entry, Member: member}, nil
}

// findMember returns the archive member matching name: a file of that
// name, or a directory (package) prefix.
func findMember(archive, name string) (string, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return "", err
	}
	defer r.Close()

	dirPrefix := name + "/"
	for _, f := range r.File {
		if f.Name == name {
			return f.Name, nil
		}
		if strings.HasPrefix(f.Name, dirPrefix) {
			return dirPrefix, nil
		}
	}
	return "", nil
}

func cleanName(name string) (string, error) {
	n := path.Clean(filepath.ToSlash(name))
	if name == "" || n == "." || path.IsAbs(n) || n == ".." || strings.HasPrefix(n, "../") {
		return "", fmt.Errorf("%w %q", ErrInvalidName, name)
	}
	return n, nil
}
