package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/vtrash/vtrash/internal/config"
)

// RotateWriter appends to a log file and moves it aside once it would grow
// past maxSize, keeping at most maxFiles rotated copies.
type RotateWriter struct {
	mu       sync.Mutex
	file     *os.File
	size     int64
	maxSize  int64
	maxFiles int
	path     string
	now      func() time.Time
}

func NewRotateWriter(path string, rot config.Rotation) (*RotateWriter, error) {
	maxSize, err := units.FromHumanSize(rot.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("invalid max size format: %w", err)
	}

	w := &RotateWriter{
		maxSize:  maxSize,
		maxFiles: rot.MaxFiles,
		path:     path,
		now:      time.Now,
	}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotateWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotateWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}

func (w *RotateWriter) openFile() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	w.file = f
	w.size = info.Size()
	return nil
}

// rotate must be called with mu held.
func (w *RotateWriter) rotate() error {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}

	backup := w.backupName()
	if err := os.Rename(w.path, backup); err != nil && !os.IsNotExist(err) {
		return err
	}

	if err := w.removeOldFiles(); err != nil {
		return err
	}

	return w.openFile()
}

// backupName timestamps the rotated file, adding a counter when several
// rotations land in the same second.
func (w *RotateWriter) backupName() string {
	base := fmt.Sprintf("%s.%s", w.path, w.now().Format("20060102-150405"))
	name := base
	for i := 1; ; i++ {
		if _, err := os.Lstat(name); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s.%d", base, i)
	}
}

func (w *RotateWriter) removeOldFiles() error {
	if w.maxFiles <= 0 {
		return nil
	}

	dir := filepath.Dir(w.path)
	base := filepath.Base(w.path)

	files, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var rotated []os.FileInfo
	for _, f := range files {
		if f.IsDir() || !strings.HasPrefix(f.Name(), base+".") {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		rotated = append(rotated, info)
	}

	if len(rotated) <= w.maxFiles {
		return nil
	}
	sort.Slice(rotated, func(i, j int) bool {
		if !rotated[i].ModTime().Equal(rotated[j].ModTime()) {
			return rotated[i].ModTime().Before(rotated[j].ModTime())
		}
		return rotated[i].Name() < rotated[j].Name()
	})
	for _, f := range rotated[:len(rotated)-w.maxFiles] {
		if err := os.Remove(filepath.Join(dir, f.Name())); err != nil {
			return err
		}
	}
	return nil
}
