package trash

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/xid"
	"github.com/samber/lo"

	"github.com/vtrash/vtrash/internal/access"
	"github.com/vtrash/vtrash/internal/fs"
	"github.com/vtrash/vtrash/internal/trash/search"
	"github.com/vtrash/vtrash/internal/trash/stamp"
)

// ErrUnsafePath is returned for masks such as "/", "." or "..".
var ErrUnsafePath = errors.New("refusing to remove an unsafe path")

// Evictor frees space in the trash. It is called with the store locked.
type Evictor interface {
	Evict() (Delta, error)
}

// ManagerOptions are the switches of a Manager.
type ManagerOptions struct {
	// Force logs a failed item and goes on with the next one
	Force bool

	// AllowAutoclean runs the Evictor once when an addition overflows the
	// trash, then retries the addition once
	AllowAutoclean bool
}

// Manager runs batch operations over masks. Only the last element of a
// mask may contain glob characters; every operation runs in a single lock
// scope.
type Manager struct {
	store   *Store
	access  access.Controller
	evictor Evictor
	opts    ManagerOptions
}

// NewManager creates a new Manager. A nil controller allows everything.
func NewManager(store *Store, ctl access.Controller, evictor Evictor, opts ManagerOptions) *Manager {
	if ctl == nil {
		ctl = access.AllowAll{}
	}
	return &Manager{
		store:   store,
		access:  ctl,
		evictor: evictor,
		opts:    opts,
	}
}

// Item is a single listed version.
type Item struct {
	Path      string
	DeletedAt time.Time
	Size      int64
}

func (m *Manager) lock() (*Guard, error) {
	guard, err := m.store.Acquire()
	if err != nil {
		return nil, fmt.Errorf("failed to lock trash: %w", err)
	}
	return guard, nil
}

func release(guard *Guard, err *error) {
	if rerr := guard.Release(); rerr != nil && *err == nil {
		*err = rerr
	}
}

// failed decides whether a per item error stops the batch.
func (m *Manager) failed(op, path string, err error) error {
	if !m.opts.Force {
		return err
	}
	slog.Error("skipping item", "op", op, "path", path, "error", err)
	return nil
}

func absMask(mask string) (string, error) {
	expanded, err := fs.ExpandHome(mask)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}

// Remove moves every path matching mask into the trash.
func (m *Manager) Remove(mask string, recursive bool) (total Delta, err error) {
	if fs.IsUnsafePath(mask) {
		return Delta{}, fmt.Errorf("%q: %w", mask, ErrUnsafePath)
	}
	abs, err := absMask(mask)
	if err != nil {
		return Delta{}, err
	}
	dir, base := filepath.Split(abs)

	guard, err := m.lock()
	if err != nil {
		return Delta{}, err
	}
	defer release(guard, &err)

	found, err := search.Collect(search.Search(dir, base, base, search.Options{Recursive: recursive}))
	if err != nil {
		return Delta{}, err
	}

	for _, path := range found {
		if m.inTrash(path) {
			slog.Warn("skipping the trash itself", "path", path)
			continue
		}
		if !m.access.Allow(access.Remove, path) {
			continue
		}
		delta, err := m.add(path)
		total = total.Add(delta)
		if err != nil {
			if err := m.failed("remove", path, err); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

func (m *Manager) add(path string) (Delta, error) {
	delta, err := m.store.Add(path)
	if !IsCapacityExceeded(err) || !m.opts.AllowAutoclean || m.evictor == nil {
		return delta, err
	}

	slog.Info("trash limit exceeded, trying to autoclean", "error", err)
	freed, cerr := m.evictor.Evict()
	if cerr != nil {
		return delta, fmt.Errorf("autoclean failed: %w", cerr)
	}
	slog.Info(fmt.Sprintf("%d files (%s) cleaned", freed.Count, humanize.Bytes(uint64(freed.Size))))
	return m.store.Add(path)
}

func (m *Manager) inTrash(path string) bool {
	root := m.store.Root()
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator)) ||
		strings.HasPrefix(root, path+string(filepath.Separator))
}

// Restore moves the index-th newest version of every trashed path matching
// mask back to its place. An existing file is only replaced when the
// controller allows it.
func (m *Manager) Restore(mask string, recursive bool, index int) (total Delta, err error) {
	abs, err := absMask(mask)
	if err != nil {
		return Delta{}, err
	}

	guard, err := m.lock()
	if err != nil {
		return Delta{}, err
	}
	defer release(guard, &err)

	found, err := m.store.Search(abs, search.Options{Recursive: recursive})
	if err != nil {
		return Delta{}, err
	}

	for _, path := range sortedPaths(found) {
		if !m.access.Allow(access.Restore, path) {
			continue
		}
		restore := m.store.Restore
		// trashed directories merge into an existing one
		if len(found[path]) > 0 && fs.Exists(path) {
			if !m.access.Allow(access.Replace, path) {
				continue
			}
			restore = m.replace
		}

		delta, err := restore(path, index)
		total = total.Add(delta)
		if err != nil {
			if err := m.failed("restore", path, err); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// replace restores path over an existing one. The existing path is moved
// aside and deleted once the restore succeeded, or put back when it failed.
func (m *Manager) replace(path string, index int) (Delta, error) {
	aside := path + ".replaced-" + xid.New().String()
	if err := os.Rename(path, aside); err != nil {
		return Delta{}, NewStorageError("restore", path, err)
	}

	delta, err := m.store.Restore(path, index)
	if err != nil {
		if rerr := os.Rename(aside, path); rerr != nil {
			slog.Warn("could not put back replaced path", "path", path, "aside", aside, "error", rerr)
		}
		return delta, err
	}
	if err := os.RemoveAll(aside); err != nil {
		slog.Warn("could not delete replaced path", "path", aside, "error", err)
	}
	return delta, nil
}

// List returns the versions of every trashed path matching mask, sorted by
// depth and path. Only the newest version of each path is listed unless
// allVersions is set.
func (m *Manager) List(mask string, recursive, allVersions bool) (items []Item, err error) {
	abs, err := absMask(mask)
	if err != nil {
		return nil, err
	}

	guard, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer release(guard, &err)

	found, err := m.store.Search(abs, search.Options{Recursive: recursive, FindAll: true})
	if err != nil {
		return nil, err
	}

	for _, path := range sortedPaths(found) {
		for _, t := range found[path] {
			items = append(items, Item{Path: path, DeletedAt: t, Size: m.versionSize(path, t)})
			if !allVersions {
				break
			}
		}
	}
	return items, nil
}

func (m *Manager) versionSize(path string, t time.Time) int64 {
	internal, err := m.store.codec.ToInternal(path)
	if err != nil {
		return 0
	}
	info, err := os.Lstat(stamp.Add(internal, &t))
	if err != nil {
		return 0
	}
	return info.Size()
}

// Clean deletes for good the versions of every trashed path matching mask.
// An empty mask cleans the whole trash.
func (m *Manager) Clean(mask string, recursive bool, index int) (total Delta, err error) {
	guard, err := m.lock()
	if err != nil {
		return Delta{}, err
	}
	defer release(guard, &err)

	var paths []string
	if mask == "" {
		paths, err = m.store.Protocols()
		if err != nil {
			return Delta{}, err
		}
	} else {
		abs, err := absMask(mask)
		if err != nil {
			return Delta{}, err
		}
		found, err := m.store.Search(abs, search.Options{Recursive: recursive, FindAll: true})
		if err != nil {
			return Delta{}, err
		}
		paths = sortedPaths(found)
	}

	var cleaned []string
	for _, path := range paths {
		// already gone with a cleaned directory
		if lo.SomeBy(cleaned, func(dir string) bool { return within(path, dir) }) {
			continue
		}
		if !m.access.Allow(access.Clean, path) {
			continue
		}

		removal, err := m.store.Remove(path, index)
		total = total.Add(Delta{Count: removal.Count, Size: removal.Size})
		if err != nil {
			if err := m.failed("clean", path, err); err != nil {
				return total, err
			}
			continue
		}
		cleaned = append(cleaned, path)
	}
	return total, nil
}

// Autoclean runs the Evictor when the controller allows it.
func (m *Manager) Autoclean() (total Delta, err error) {
	if m.evictor == nil || !m.access.Allow(access.Autoclean, m.store.Root()) {
		return Delta{}, nil
	}

	guard, err := m.lock()
	if err != nil {
		return Delta{}, err
	}
	defer release(guard, &err)

	return m.evictor.Evict()
}

// sortedPaths returns the keys of found ordered by depth, then path.
func sortedPaths(found map[string][]time.Time) []string {
	paths := lo.Keys(found)
	slices.SortFunc(paths, func(a, b string) int {
		da := strings.Count(a, string(filepath.Separator))
		db := strings.Count(b, string(filepath.Separator))
		if da != db {
			return da - db
		}
		return strings.Compare(a, b)
	})
	return paths
}

func within(path, dir string) bool {
	if strings.HasSuffix(dir, string(filepath.Separator)) {
		return strings.HasPrefix(path, dir)
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}
