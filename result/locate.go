// Package result finds the video SVFI wrote into a job's output directory.
package result

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoOutput means the directory holds no file with the expected extension.
var ErrNoOutput = errors.New("no output file found")

// AmbiguousError means more than one candidate was found. Nothing is picked.
type AmbiguousError struct {
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%d output files found, expected exactly one", len(e.Matches))
}

// Locate returns the single regular file in dir whose extension equals ext
// (case-insensitive, with or without the leading dot).
func Locate(dir, ext string) (string, error) {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNoOutput
		}
		return "", fmt.Errorf("scan output dir %s: %w", dir, err)
	}

	var matches []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ext) {
			matches = append(matches, filepath.Join(dir, e.Name()))
		}
	}

	switch len(matches) {
	case 0:
		return "", ErrNoOutput
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", &AmbiguousError{Matches: matches}
	}
}
