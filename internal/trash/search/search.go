// Package search walks a directory tree matching file and directory names
// against unix shell masks.
package search

import (
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
)

// Options controls how deep Search looks.
type Options struct {
	// Recursive descends into sub directories.
	Recursive bool

	// FindAll keeps descending into directories that already matched the
	// directory mask.
	FindAll bool
}

type matcher interface {
	Match(string) bool
}

type nothing struct{}

func (nothing) Match(string) bool { return false }

// compile compiles mask as a shell glob. Only "*", "?" and "[...]" are
// special. An empty mask matches nothing.
func compile(mask string) matcher {
	if mask == "" {
		return nothing{}
	}
	g, err := glob.Compile(translate(mask))
	if err != nil {
		slog.Debug("mask is not a valid glob, matching literally", "mask", mask, "error", err)
		return glob.MustCompile(glob.QuoteMeta(mask))
	}
	return g
}

// Search returns a lazy sequence of paths under root. A file is yielded when
// its name matches fileMask, a directory when its name matches dirMask.
//
// With Recursive set, a directory is descended into when it did not match
// dirMask, or always when FindAll is set. Symbolic links are never followed
// and are treated as files.
//
// The sequence is finite and walks the tree again every time it is ranged
// over. A directory that cannot be read ends the sequence with a non-nil
// error.
func Search(root, dirMask, fileMask string, opts Options) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if root == "" {
			root = "."
		}
		files := compile(fileMask)
		dirs := compile(dirMask)

		stack := []string{root}
		for len(stack) > 0 {
			dir := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			entries, err := os.ReadDir(dir)
			if err != nil {
				yield("", err)
				return
			}

			var next []string
			for _, entry := range entries {
				name := entry.Name()
				path := filepath.Join(dir, name)

				if !entry.IsDir() {
					if files.Match(name) && !yield(path, nil) {
						return
					}
					continue
				}

				matched := dirs.Match(name)
				if matched && !yield(path, nil) {
					return
				}
				if opts.Recursive && (!matched || opts.FindAll) {
					next = append(next, path)
				}
			}

			// keep listing order when popping
			for i := len(next) - 1; i >= 0; i-- {
				stack = append(stack, next[i])
			}
		}
	}
}

// Collect drains seq into a slice.
func Collect(seq iter.Seq2[string, error]) ([]string, error) {
	var paths []string
	for path, err := range seq {
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
