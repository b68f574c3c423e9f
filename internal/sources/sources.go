// Package sources expands command-line arguments into exam source files.
package sources

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultInclude matches exam sources when a directory is given.
var DefaultInclude = []string{"**/*.md", "**/*.markdown"}

// DefaultExcludes are directory names skipped while walking.
var DefaultExcludes = []string{
	".git",
	"node_modules",
	"vendor",
	".venv",
	".idea",
	".vscode",
}

// Options controls Expand.
type Options struct {
	Include []string // patterns applied inside directories (default DefaultInclude)
	Exclude []string // patterns removed from every result
}

// Expand resolves each argument to source paths. Plain paths are kept as
// given even when missing, so the build reports them. Directories are walked
// for Include matches, everything else is treated as a glob. Results keep
// argument order without duplicates.
func Expand(args []string, opts Options) ([]string, error) {
	include := opts.Include
	if len(include) == 0 {
		include = DefaultInclude
	}

	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		p = filepath.Clean(p)
		if seen[p] || MatchesAny(p, opts.Exclude) {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		switch {
		case err == nil && info.IsDir():
			files, err := walk(arg, include)
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				add(f)
			}
		case err == nil:
			add(arg)
		case !isPattern(arg):
			add(arg)
		default:
			matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("sources: bad pattern %q: %w", arg, err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("sources: no files match %q", arg)
			}
			for _, m := range matches {
				add(m)
			}
		}
	}
	return out, nil
}

func walk(root string, include []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != root && shouldExcludeDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if MatchesAny(rel, include) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sources: walk %s: %w", root, err)
	}
	return files, nil
}

func isPattern(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

// shouldExcludeDir checks whether a directory name matches any default
// exclusion pattern.
func shouldExcludeDir(name string) bool {
	for _, excl := range DefaultExcludes {
		if strings.EqualFold(name, excl) {
			return true
		}
	}
	return false
}

// MatchesAny checks if p matches any of the given glob patterns, either as a
// whole path or by its base name.
func MatchesAny(p string, patterns []string) bool {
	normalized := filepath.ToSlash(p)
	base := filepath.Base(normalized)
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		if matched, err := doublestar.Match(pattern, normalized); err == nil && matched {
			return true
		}
		if matched, err := doublestar.Match(pattern, base); err == nil && matched {
			return true
		}
	}
	return false
}
