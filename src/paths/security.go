package paths

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"
)

// Path security errors
var (
	ErrInvalidName   = errors.New("invalid file name")
	ErrNameTooLong   = errors.New("file name too long")
	ErrPathTraversal = errors.New("path traversal attempt")
)

// validName allows a single file name: alphanumerics, dots, hyphens and
// underscores, not starting with a dot.
var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateName checks that name is a single, plain file name
func ValidateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if name == "." || name == ".." || strings.Contains(name, "..") {
		return ErrPathTraversal
	}
	if len(name) > 128 {
		return ErrNameTooLong
	}
	if strings.ContainsAny(name, `/\`) || !validName.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

// SafeJoin joins a file name onto baseDir and ensures the result stays
// inside baseDir.
func SafeJoin(baseDir, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", err
	}
	absPath := filepath.Join(absBase, name)

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return absPath, nil
}
