package fs

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Usage is the number of files under a path and their total size in bytes.
// Directories themselves count for nothing; symbolic links count as files
// of their own (not their target's) size.
type Usage struct {
	Count int64
	Size  int64
}

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{Count: u.Count + o.Count, Size: u.Size + o.Size}
}

// Sub returns u minus o.
func (u Usage) Sub(o Usage) Usage {
	return Usage{Count: u.Count - o.Count, Size: u.Size - o.Size}
}

// DiskUsage walks path and returns its usage.
func DiskUsage(path string) (Usage, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Usage{}, err
	}
	if !info.IsDir() {
		return Usage{Count: 1, Size: info.Size()}, nil
	}

	var u Usage
	err = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		u.Count++
		u.Size += info.Size()
		return nil
	})
	return u, err
}

// DirUsage sums the usage of the entries of dir, except those named in skip.
// Entries are walked concurrently.
func DirUsage(dir string, skip ...string) (Usage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Usage{}, err
	}

	var (
		mu    sync.Mutex
		total Usage
		eg    errgroup.Group
	)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for _, e := range entries {
		if slices.Contains(skip, e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		eg.Go(func() error {
			u, err := DiskUsage(path)
			if err != nil {
				return err
			}
			mu.Lock()
			total = total.Add(u)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Usage{}, err
	}
	return total, nil
}

// IsDir reports whether path is a directory, without following links.
func IsDir(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.IsDir()
}

// Exists reports whether anything, including a dangling link, is at path.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
