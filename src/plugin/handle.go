package plugin

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/zeebo/blake3"
)

// ErrNotFile is returned when a handle refers to a directory or package
var ErrNotFile = errors.New("extension is not a single file")

// Handle is a resolved extension
type Handle struct {
	Name   string `json:"name" yaml:"name"`
	Origin string `json:"origin" yaml:"origin"` // search path entry that provided it
	Path   string `json:"path" yaml:"path"`     // file on disk; the archive for members
	Member string `json:"member,omitempty" yaml:"member,omitempty"`
}

// Archived reports whether the extension lives inside a bundle archive
func (h *Handle) Archived() bool {
	return h.Member != ""
}

// Open returns the extension contents
func (h *Handle) Open() (io.ReadCloser, error) {
	if !h.Archived() {
		info, err := os.Stat(h.Path)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%w: %s", ErrNotFile, h.Path)
		}
		return os.Open(h.Path)
	}

	if strings.HasSuffix(h.Member, "/") {
		return nil, fmt.Errorf("%w: %s!%s", ErrNotFile, h.Path, h.Member)
	}

	r, err := zip.OpenReader(h.Path)
	if err != nil {
		return nil, err
	}
	for _, f := range r.File {
		if f.Name != h.Member {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			r.Close()
			return nil, err
		}
		return &memberReader{ReadCloser: rc, archive: r}, nil
	}
	r.Close()
	return nil, fmt.Errorf("%w: %s!%s", ErrNotFound, h.Path, h.Member)
}

type memberReader struct {
	io.ReadCloser
	archive *zip.ReadCloser
}

func (m *memberReader) Close() error {
	err := m.ReadCloser.Close()
	if cerr := m.archive.Close(); err == nil {
		err = cerr
	}
	return err
}

// Digest returns the hex BLAKE3 hash of the extension contents
func (h *Handle) Digest() (string, error) {
	rc, err := h.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, rc); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Materialize returns a path the OS loader can open. Files already on disk
// are returned as is; archived members are extracted once into cacheDir,
// keyed by content digest.
func (h *Handle) Materialize(cacheDir string) (string, error) {
	if !h.Archived() {
		return h.Path, nil
	}

	digest, err := h.Digest()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(cacheDir, digest[:16])
	target := filepath.Join(dir, path.Base(h.Member))
	if _, err := os.Stat(target); err == nil {
		return target, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	rc, err := h.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(dir, ".extract-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0755); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return target, nil
}
