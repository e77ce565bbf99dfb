package trash

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/vtrash/vtrash/internal/fs"
	"github.com/vtrash/vtrash/internal/trash/codec"
	"github.com/vtrash/vtrash/internal/trash/search"
	"github.com/vtrash/vtrash/internal/trash/stamp"
)

// AllVersions selects every version of a path in Remove.
const AllVersions = -1

// Delta is what an operation moved into or out of the trash.
type Delta = fs.Usage

// Removal describes the versions deleted by Remove.
type Removal struct {
	Count   int64
	Size    int64
	Removed []stamp.Pair
}

// Entry is a single stored version.
type Entry struct {
	// Path is the original, external path
	Path      string
	DeletedAt time.Time
	Size      int64

	// Stored is the file holding the version inside the trash
	Stored string
}

// Store is a versioned trash rooted at a single directory.
//
// Every mutating method must be called between Lock and Unlock (or under a
// Guard) and panics with ErrNotLocked otherwise. While locked the store
// keeps the number and the total size of the files it holds.
type Store struct {
	cfg   Config
	codec codec.Codec
	now   func() time.Time

	locked bool
	marker string
	usage  fs.Usage
}

// NewStore creates a Store for cfg. Nothing is touched on disk until Lock.
func NewStore(cfg Config) (*Store, error) {
	s := &Store{now: time.Now}
	if err := s.apply(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) apply(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	root, err := cfg.root()
	if err != nil {
		return fmt.Errorf("failed to resolve trash directory: %w", err)
	}
	c, err := codec.New(root)
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.codec = c
	return nil
}

// Reconfigure replaces the settings of the store. It is refused while the
// store is locked.
func (s *Store) Reconfigure(cfg Config) error {
	if s.locked {
		return ErrLocked
	}
	return s.apply(cfg)
}

// Config returns the current settings.
func (s *Store) Config() Config {
	return s.cfg
}

// Root returns the absolute trash directory.
func (s *Store) Root() string {
	return s.codec.Root
}

// Lock creates the trash directory when needed, takes the lock marker and
// computes the usage counters.
func (s *Store) Lock() error {
	root := s.codec.Root
	if err := os.MkdirAll(root, 0o700); err != nil {
		return NewStorageError("lock", root, err)
	}

	marker := filepath.Join(root, s.cfg.LockFile)
	f, err := fs.CreateExclusive(marker, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", marker, ErrLockConflict)
		}
		return NewStorageError("lock", marker, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(marker)
		return NewStorageError("lock", marker, err)
	}

	usage, err := fs.DirUsage(root, s.cfg.LockFile)
	if err != nil {
		_ = os.Remove(marker)
		return NewStorageError("lock", root, err)
	}

	s.marker = marker
	s.usage = usage
	s.locked = true
	slog.Debug("trash locked", "root", root, "count", s.usage.Count, "size", s.usage.Size, "run_id", s.cfg.RunID)
	return nil
}

// Unlock removes the lock marker and forgets the counters.
func (s *Store) Unlock() error {
	s.mustBeLocked()

	marker := s.marker
	s.locked = false
	s.marker = ""
	s.usage = fs.Usage{}

	if err := os.Remove(marker); err != nil {
		return NewStorageError("unlock", marker, err)
	}
	slog.Debug("trash unlocked", "root", s.codec.Root)
	return nil
}

// Guard releases a lock taken by Acquire.
type Guard struct {
	store *Store
	owned bool
}

// Acquire locks the store and returns a guard for it. When the store is
// already locked in this session the guard does nothing.
func (s *Store) Acquire() (*Guard, error) {
	if s.locked {
		return &Guard{store: s}, nil
	}
	if err := s.Lock(); err != nil {
		return nil, err
	}
	return &Guard{store: s, owned: true}, nil
}

// Release unlocks the store if the guard took the lock. It is safe to call
// more than once.
func (g *Guard) Release() error {
	if g == nil || !g.owned {
		return nil
	}
	g.owned = false
	return g.store.Unlock()
}

// Locked reports whether the store holds its lock.
func (s *Store) Locked() bool {
	return s.locked
}

// Count returns the number of files in the trash.
func (s *Store) Count() int64 {
	s.mustBeLocked()
	return s.usage.Count
}

// Size returns the total size in bytes of the files in the trash.
func (s *Store) Size() int64 {
	s.mustBeLocked()
	return s.usage.Size
}

func (s *Store) mustBeLocked() {
	if !s.locked {
		panic(ErrNotLocked)
	}
}

// Add moves path into the trash. A directory is moved file by file and
// removed once empty. The addition is refused before anything moves when it
// would overflow the configured limits.
func (s *Store) Add(path string) (Delta, error) {
	s.mustBeLocked()

	abs, err := filepath.Abs(path)
	if err != nil {
		return Delta{}, NewStorageError("add", path, err)
	}
	usage, err := fs.DiskUsage(abs)
	if err != nil {
		return Delta{}, NewStorageError("add", abs, err)
	}

	next := s.usage.Add(usage)
	if next.Count > s.cfg.MaxCount || next.Size > s.cfg.MaxSize {
		return Delta{}, &CapacityError{
			Count:    next.Count,
			Size:     next.Size,
			MaxCount: s.cfg.MaxCount,
			MaxSize:  s.cfg.MaxSize,
		}
	}

	var moved Delta
	if fs.IsDir(abs) {
		err = s.addDir(abs, &moved)
	} else {
		err = s.addFile(abs, &moved)
	}
	s.usage = s.usage.Add(moved)
	return moved, err
}

func (s *Store) addFile(path string, moved *Delta) error {
	info, err := os.Lstat(path)
	if err != nil {
		return NewStorageError("add", path, err)
	}
	internal, err := s.codec.ToInternal(path)
	if err != nil {
		return NewStorageError("add", path, err)
	}

	now := s.now().UTC()
	target := stamp.Add(internal, &now)
	for fs.Exists(target) {
		now = now.Add(time.Microsecond)
		target = stamp.Add(internal, &now)
	}

	slog.Debug("moving file to trash", "from", path, "to", target)
	if err := fs.Move(path, target, 0o700); err != nil {
		return NewStorageError("add", path, err)
	}
	*moved = moved.Add(fs.Usage{Count: 1, Size: info.Size()})
	return nil
}

func (s *Store) addDir(dir string, moved *Delta) error {
	internal, err := s.codec.ToInternal(dir)
	if err != nil {
		return NewStorageError("add", dir, err)
	}
	if err := os.MkdirAll(internal, 0o700); err != nil {
		return NewStorageError("add", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return NewStorageError("add", dir, err)
	}
	for _, entry := range entries {
		child := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			err = s.addDir(child, moved)
		} else {
			err = s.addFile(child, moved)
		}
		if err != nil {
			return err
		}
	}

	if err := os.Remove(dir); err != nil {
		return NewStorageError("add", dir, err)
	}
	return nil
}

// Restore moves the index-th newest version of path back to path. A
// directory is restored child by child, using the same index for every file.
func (s *Store) Restore(path string, index int) (Delta, error) {
	s.mustBeLocked()

	internal, err := s.codec.ToInternal(path)
	if err != nil {
		return Delta{}, NewStorageError("restore", path, err)
	}

	var moved Delta
	if fs.IsDir(internal) {
		err = s.restoreDir(internal, index, &moved)
	} else {
		err = s.restoreFile(internal, index, &moved)
	}
	s.usage = s.usage.Sub(moved)
	return moved, err
}

func (s *Store) restoreFile(internal string, index int, moved *Delta) error {
	version, err := stamp.Nth(internal, index)
	if err != nil {
		return NewStorageError("restore", s.external(internal), err)
	}
	target, err := s.codec.ToExternal(internal)
	if err != nil {
		return NewStorageError("restore", internal, err)
	}
	info, err := os.Lstat(version)
	if err != nil {
		return NewStorageError("restore", target, err)
	}

	slog.Debug("moving file from trash", "from", version, "to", target)
	if err := fs.Move(version, target, 0o755); err != nil {
		return NewStorageError("restore", target, err)
	}
	*moved = moved.Add(fs.Usage{Count: 1, Size: info.Size()})
	return s.prune(filepath.Dir(version))
}

func (s *Store) restoreDir(internal string, index int, moved *Delta) error {
	target, err := s.codec.ToExternal(internal)
	if err != nil {
		return NewStorageError("restore", internal, err)
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return NewStorageError("restore", target, err)
	}

	found, err := search.Collect(search.Search(internal, "*", "*", search.Options{}))
	if err != nil {
		return NewStorageError("restore", target, err)
	}

	seen := make(map[string]bool, len(found))
	for _, path := range found {
		original, _ := stamp.Split(path)
		if seen[original] {
			continue
		}
		seen[original] = true

		if fs.IsDir(original) {
			err = s.restoreDir(original, index, moved)
		} else {
			err = s.restoreFile(original, index, moved)
		}
		if err != nil {
			return err
		}
	}
	return s.prune(internal)
}

// Remove deletes versions of path from the trash for good. A non negative
// index deletes that version only (clamped to the oldest), AllVersions
// deletes them all. A directory is deleted with its entire content.
//
// The counters always reflect what was actually deleted, even when an error
// stops the removal halfway.
func (s *Store) Remove(path string, index int) (Removal, error) {
	s.mustBeLocked()

	internal, err := s.codec.ToInternal(path)
	if err != nil {
		return Removal{}, NewStorageError("remove", path, err)
	}

	var r Removal
	if fs.IsDir(internal) {
		err = s.removeTree(internal, &r)
	} else {
		err = s.removeVersions(internal, index, &r)
	}
	s.usage = s.usage.Sub(fs.Usage{Count: r.Count, Size: r.Size})

	if perr := s.prune(filepath.Dir(internal)); err == nil {
		err = perr
	}
	return r, err
}

// RemoveVersion deletes the version of path deleted at t.
func (s *Store) RemoveVersion(path string, t time.Time) (Removal, error) {
	s.mustBeLocked()

	internal, err := s.codec.ToInternal(path)
	if err != nil {
		return Removal{}, NewStorageError("remove", path, err)
	}

	var r Removal
	version := stamp.Add(internal, &t)
	err = s.removeFile(version, &r)
	s.usage = s.usage.Sub(fs.Usage{Count: r.Count, Size: r.Size})

	if perr := s.prune(filepath.Dir(version)); err == nil {
		err = perr
	}
	return r, err
}

// RemoveEntry deletes the stored file of e, as listed by Entries.
func (s *Store) RemoveEntry(e Entry) (Removal, error) {
	s.mustBeLocked()

	rel, err := filepath.Rel(s.codec.Root, e.Stored)
	if err != nil || rel == "." || !filepath.IsLocal(rel) {
		return Removal{}, NewStorageError("remove", e.Stored, ErrUnsafePath)
	}

	var r Removal
	err = s.removeFile(e.Stored, &r)
	s.usage = s.usage.Sub(fs.Usage{Count: r.Count, Size: r.Size})

	if perr := s.prune(filepath.Dir(e.Stored)); err == nil {
		err = perr
	}
	return r, err
}

func (s *Store) removeVersions(internal string, index int, r *Removal) error {
	versions, err := stamp.Versions(internal)
	if err != nil {
		return NewStorageError("remove", s.external(internal), err)
	}
	if len(versions) == 0 {
		return NewStorageError("remove", s.external(internal), ErrNoVersions)
	}
	if index >= 0 {
		index = min(index, len(versions)-1)
		versions = versions[index : index+1]
	}

	for _, t := range versions {
		if err := s.removeFile(stamp.Add(internal, &t), r); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) removeTree(internal string, r *Removal) error {
	var files []string
	err := filepath.WalkDir(internal, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return NewStorageError("remove", s.external(internal), err)
	}

	for _, file := range files {
		if err := s.removeFile(file, r); err != nil {
			return err
		}
	}
	if err := os.RemoveAll(internal); err != nil {
		return NewStorageError("remove", s.external(internal), err)
	}
	return nil
}

func (s *Store) removeFile(version string, r *Removal) error {
	info, err := os.Lstat(version)
	if err != nil {
		return NewStorageError("remove", version, err)
	}
	slog.Debug("removing file from trash", "path", version)
	if err := os.Remove(version); err != nil {
		return NewStorageError("remove", version, err)
	}

	r.Count++
	r.Size += info.Size()
	if original, t := stamp.Split(version); t != nil {
		r.Removed = append(r.Removed, stamp.Pair{Path: s.external(original), Time: *t})
	}
	return nil
}

// Search finds the trashed paths matching mask. Only the last element of
// mask may contain glob characters. Files map to their deletion times,
// newest first, directories to an empty list.
func (s *Store) Search(mask string, opts search.Options) (map[string][]time.Time, error) {
	internal, err := s.codec.ToInternal(mask)
	if err != nil {
		return nil, err
	}
	dir, base := filepath.Split(internal)

	result := make(map[string][]time.Time)
	for found, err := range search.Search(dir, base, stamp.ExtendMask(base), opts) {
		if err != nil {
			if errors.Is(err, iofs.ErrNotExist) {
				break
			}
			return nil, NewStorageError("search", mask, err)
		}
		original, t := stamp.Split(found)
		external, err := s.codec.ToExternal(original)
		if err != nil {
			return nil, NewStorageError("search", found, err)
		}
		if t == nil {
			if _, ok := result[external]; !ok {
				result[external] = []time.Time{}
			}
			continue
		}
		result[external] = append(result[external], *t)
	}

	for _, times := range result {
		slices.SortFunc(times, func(a, b time.Time) int { return b.Compare(a) })
	}
	return result, nil
}

// Entries returns every stored version in the trash, oldest first.
func (s *Store) Entries() ([]Entry, error) {
	root := s.codec.Root
	var entries []Entry

	err := filepath.WalkDir(root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, iofs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		// only protocol subtrees hold versions
		if d.IsDir() || filepath.Dir(path) == root {
			return nil
		}
		original, t := stamp.Split(path)
		if t == nil {
			return nil
		}
		external, err := s.codec.ToExternal(original)
		if err != nil {
			slog.Warn("skipping unexpected file in trash", "path", path, "error", err)
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Path: external, DeletedAt: *t, Size: info.Size(), Stored: path})
		return nil
	})
	if err != nil {
		return nil, NewStorageError("list", root, err)
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		if c := a.DeletedAt.Compare(b.DeletedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})
	return entries, nil
}

// Protocols returns the external roots (such as "/") present in the trash.
func (s *Store) Protocols() ([]string, error) {
	root := s.codec.Root
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil
		}
		return nil, NewStorageError("list", root, err)
	}

	var protocols []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		external, err := s.codec.ToExternal(filepath.Join(root, entry.Name()))
		if err != nil {
			slog.Warn("skipping unexpected directory in trash", "name", entry.Name(), "error", err)
			continue
		}
		protocols = append(protocols, external)
	}
	return protocols, nil
}

func (s *Store) prune(dir string) error {
	if err := fs.PruneEmpty(dir, s.codec.Root); err != nil {
		return NewStorageError("prune", dir, err)
	}
	return nil
}

// external maps an internal path for messages, falling back to the path
// itself.
func (s *Store) external(internal string) string {
	if p, err := s.codec.ToExternal(internal); err == nil {
		return p
	}
	return internal
}
