package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stoq/stoqserver/src/paths"
)

// ScanBundles lists the immediate entries of dir and returns the full path
// of every entry whose name ends in one of suffixes, in listing order.
// Matching ignores case and the suffix alone is not a bundle name.
// A listing error is returned as is: the caller cannot know the bundle set
// without it.
func ScanBundles(dir string, suffixes []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list bundles in %s: %w", dir, err)
	}

	var found []string
	for _, e := range entries {
		if hasSuffix(e.Name(), suffixes) {
			found = append(found, filepath.Join(dir, e.Name()))
		}
	}
	return found, nil
}

func hasSuffix(name string, suffixes []string) bool {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if s == "" || len(name) <= len(s) {
			continue
		}
		if strings.HasSuffix(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// Exists reports whether path exists on disk
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// RegisterExtensions resolves each name inside dir and prepends the ones
// that exist, in the order given. Missing archives are skipped silently;
// names that are not plain file names are skipped too. It returns the new
// search path and the paths that were added.
func RegisterExtensions(sp SearchPath, dir string, names []string, exists func(string) bool) (SearchPath, []string) {
	if exists == nil {
		exists = Exists
	}

	var added []string
	for _, name := range names {
		p, err := paths.SafeJoin(dir, name)
		if err != nil {
			continue
		}
		if !exists(p) {
			continue
		}
		sp = sp.Prepend(p)
		added = append(added, p)
	}
	return sp, added
}
