package plugin

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
)

// VerifyBundle reads every member of a bundle archive so that corrupt
// entries surface as checksum errors. It returns the number of file members.
func VerifyBundle(path string) (int, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return 0, fmt.Errorf("open bundle %s: %w", path, err)
	}
	defer r.Close()

	files := 0
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return files, fmt.Errorf("%s!%s: %w", path, f.Name, err)
		}
		_, err = io.Copy(io.Discard, rc)
		rc.Close()
		if err != nil {
			return files, fmt.Errorf("%s!%s: %w", path, f.Name, err)
		}
		files++
	}
	return files, nil
}
