// Package archive turns a set of files into a streamed zip archive and
// streams a zip archive back onto disk.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidRootDirectory is returned when the upload root does not
	// exist, is not a directory, or is not an ancestor of a file.
	ErrInvalidRootDirectory = errors.New("invalid root directory")
	// ErrInvalidPath is returned for files that are missing or whose path
	// inside the archive contains reserved characters.
	ErrInvalidPath = errors.New("invalid file path")
)

// invalidPathCharacters are rejected in paths inside an archive.
var invalidPathCharacters = map[rune]string{
	'"':  `Double quote "`,
	':':  `Colon :`,
	'<':  `Less than <`,
	'>':  `Greater than >`,
	'|':  `Vertical bar |`,
	'*':  `Asterisk *`,
	'?':  `Question mark ?`,
	'\r': `Carriage return \r`,
	'\n': `Line feed \n`,
}

// Entry maps a file on disk to its path inside the archive. An empty
// SourcePath records an explicit directory entry.
type Entry struct {
	SourcePath      string
	DestinationPath string
}

// IsDir reports whether the entry is an explicit directory.
func (e Entry) IsDir() bool { return e.SourcePath == "" }

// ValidateRootDirectory checks that root exists and is a directory.
func ValidateRootDirectory(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s does not exist", ErrInvalidRootDirectory, root)
		}
		return fmt.Errorf("%w: %v", ErrInvalidRootDirectory, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a valid directory", ErrInvalidRootDirectory, root)
	}
	return nil
}

// ValidateFilePath rejects archive paths containing reserved characters.
func ValidateFilePath(p string) error {
	if p == "" {
		return fmt.Errorf("%w: path is empty", ErrInvalidPath)
	}
	for _, r := range p {
		if desc, bad := invalidPathCharacters[r]; bad {
			return fmt.Errorf("%w: %q contains %s", ErrInvalidPath, p, desc)
		}
	}
	return nil
}

// BuildSpecification resolves files against root into archive entries, in
// the order given. Every file must exist and live under root. Directories
// become explicit directory entries; symbolic links are followed.
func BuildSpecification(files []string, root string) ([]Entry, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRootDirectory, err)
	}

	entries := make([]Entry, 0, len(files))
	seen := make(map[string]bool, len(files))
	for _, file := range files {
		absFile, err := filepath.Abs(file)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
		rel, err := filepath.Rel(absRoot, absFile)
		if err != nil || !filepath.IsLocal(rel) {
			return nil, fmt.Errorf("%w: %s is not a parent directory of %s", ErrInvalidRootDirectory, root, file)
		}
		if rel == "." {
			// The root itself carries no entry of its own.
			continue
		}

		info, err := os.Stat(absFile)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: file %s does not exist", ErrInvalidPath, file)
			}
			return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}

		dest := filepath.ToSlash(rel)
		if err := ValidateFilePath(dest); err != nil {
			return nil, err
		}

		if info.IsDir() {
			if seen[dest+"/"] {
				continue
			}
			seen[dest+"/"] = true
			entries = append(entries, Entry{DestinationPath: dest})
			continue
		}
		if seen[dest] {
			return nil, fmt.Errorf("%w: %s appears more than once", ErrInvalidPath, dest)
		}
		seen[dest] = true
		entries = append(entries, Entry{SourcePath: absFile, DestinationPath: dest})
	}
	return entries, nil
}

func dirName(dest string) string {
	return strings.TrimSuffix(dest, "/") + "/"
}
