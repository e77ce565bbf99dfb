package trash

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vtrash/vtrash/internal/trash/search"
)

// newTestStore returns a locked store rooted in a temp directory whose clock
// advances one second per call.
func newTestStore(t *testing.T, mutate func(*Config)) *Store {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Directory = filepath.Join(t.TempDir(), "trash")
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	if err := s.Lock(); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	t.Cleanup(func() {
		if s.Locked() {
			_ = s.Unlock()
		}
	})
	return s
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}

// assertCounters checks the incremental counters against a fresh walk.
func assertCounters(t *testing.T, s *Store) {
	t.Helper()
	count, size := s.Count(), s.Size()
	if err := s.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := s.Lock(); err != nil {
		t.Fatal(err)
	}
	if s.Count() != count || s.Size() != size {
		t.Errorf("counters = (%d, %d), walk = (%d, %d)", count, size, s.Count(), s.Size())
	}
}

func TestScenarioVersions(t *testing.T) {
	s := newTestStore(t, nil)
	file := filepath.Join(t.TempDir(), "a.txt")

	writeFile(t, file, 10)
	if _, err := s.Add(file); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	writeFile(t, file, 5)
	if _, err := s.Add(file); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if s.Count() != 2 || s.Size() != 15 {
		t.Fatalf("counters = (%d, %d), want (2, 15)", s.Count(), s.Size())
	}

	found, err := s.Search(file, search.Options{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got := len(found[file]); got != 2 {
		t.Fatalf("Search() found %d versions, want 2: %v", got, found)
	}

	delta, err := s.Restore(file, 0)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if delta.Count != 1 || delta.Size != 5 {
		t.Errorf("Restore() = %+v, want 1 file of 5 bytes", delta)
	}
	if info, err := os.Stat(file); err != nil || info.Size() != 5 {
		t.Errorf("restored file = %v, %v; want 5 bytes", info, err)
	}

	removal, err := s.Remove(file, AllVersions)
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if removal.Count != 1 || removal.Size != 10 {
		t.Errorf("Remove() = (%d, %d), want (1, 10)", removal.Count, removal.Size)
	}
	if len(removal.Removed) != 1 || removal.Removed[0].Path != file {
		t.Errorf("Remove().Removed = %v", removal.Removed)
	}
	if s.Count() != 0 || s.Size() != 0 {
		t.Errorf("counters = (%d, %d), want empty", s.Count(), s.Size())
	}

	// the emptied protocol subtree is pruned
	entries, err := os.ReadDir(s.Root())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != s.cfg.LockFile {
		t.Errorf("trash root holds %v, want only the lock marker", entries)
	}
}

func TestCapacityIsCheckedBeforeMoving(t *testing.T) {
	s := newTestStore(t, func(c *Config) { c.MaxCount = 5 })
	file := filepath.Join(t.TempDir(), "f")

	for i := 0; i < 5; i++ {
		writeFile(t, file, 1)
		if _, err := s.Add(file); err != nil {
			t.Fatalf("Add() #%d error = %v", i+1, err)
		}
	}

	writeFile(t, file, 1)
	_, err := s.Add(file)
	if !IsCapacityExceeded(err) {
		t.Fatalf("Add() #6 error = %v, want ErrCapacityExceeded", err)
	}
	var capErr *CapacityError
	if !errors.As(err, &capErr) || capErr.Count != 6 || capErr.MaxCount != 5 {
		t.Errorf("Add() #6 error = %#v", err)
	}

	if _, err := os.Stat(file); err != nil {
		t.Errorf("rejected file must stay in place: %v", err)
	}
	found, err := s.Search(file, search.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got := len(found[file]); got != 5 {
		t.Errorf("trash holds %d versions, want 5", got)
	}
	if s.Count() != 5 {
		t.Errorf("Count() = %d, want 5", s.Count())
	}
}

func TestCapacityBySize(t *testing.T) {
	s := newTestStore(t, func(c *Config) { c.MaxSize = 10 })
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "small"), 6)
	writeFile(t, filepath.Join(dir, "big"), 5)
	if _, err := s.Add(filepath.Join(dir, "small")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(filepath.Join(dir, "big")); !IsCapacityExceeded(err) {
		t.Fatalf("Add() error = %v, want ErrCapacityExceeded", err)
	}
	if s.Size() != 6 {
		t.Errorf("Size() = %d, want 6", s.Size())
	}
}

func TestLockConflict(t *testing.T) {
	s := newTestStore(t, nil)

	other, err := NewStore(s.Config())
	if err != nil {
		t.Fatal(err)
	}
	if err := other.Lock(); !IsLockConflict(err) {
		t.Fatalf("second Lock() error = %v, want ErrLockConflict", err)
	}
	if err := s.Lock(); !IsLockConflict(err) {
		t.Fatalf("double Lock() error = %v, want ErrLockConflict", err)
	}

	if err := s.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := other.Lock(); err != nil {
		t.Fatalf("Lock() after Unlock() error = %v", err)
	}
	_ = other.Unlock()
}

func TestGuardIsReentrant(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Directory = t.TempDir()
	s, err := NewStore(cfg)
	if err != nil {
		t.Fatal(err)
	}

	outer, err := s.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	inner, err := s.Acquire()
	if err != nil {
		t.Fatalf("nested Acquire() error = %v", err)
	}

	if err := inner.Release(); err != nil {
		t.Fatal(err)
	}
	if !s.Locked() {
		t.Fatal("inner Release() must not unlock the store")
	}

	if err := outer.Release(); err != nil {
		t.Fatal(err)
	}
	if err := outer.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
	if s.Locked() {
		t.Fatal("outer Release() must unlock the store")
	}
	if _, err := os.Stat(filepath.Join(s.Root(), cfg.LockFile)); !os.IsNotExist(err) {
		t.Errorf("lock marker still exists: %v", err)
	}
}

func TestMutationOutsideLockPanics(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Directory = t.TempDir()
	s, err := NewStore(cfg)
	if err != nil {
		t.Fatal(err)
	}

	defer func() {
		r := recover()
		if err, ok := r.(error); !ok || !errors.Is(err, ErrNotLocked) {
			t.Errorf("recover() = %v, want ErrNotLocked", r)
		}
	}()
	_, _ = s.Add(filepath.Join(cfg.Directory, "x"))
}

func TestReconfigure(t *testing.T) {
	s := newTestStore(t, nil)
	cfg := s.Config()
	cfg.MaxCount = 1

	if err := s.Reconfigure(cfg); !errors.Is(err, ErrLocked) {
		t.Fatalf("Reconfigure() while locked error = %v, want ErrLocked", err)
	}
	if err := s.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := s.Reconfigure(cfg); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	if s.Config().MaxCount != 1 {
		t.Errorf("MaxCount = %d, want 1", s.Config().MaxCount)
	}

	cfg.LockFile = "a/b"
	if err := s.Reconfigure(cfg); err == nil {
		t.Error("Reconfigure() with invalid lock file must fail")
	}
}

func TestDirectoryRoundTrip(t *testing.T) {
	s := newTestStore(t, nil)
	dir := filepath.Join(t.TempDir(), "project")
	writeFile(t, filepath.Join(dir, "a.txt"), 3)
	writeFile(t, filepath.Join(dir, "sub", "b.txt"), 4)
	writeFile(t, filepath.Join(dir, "sub", "deeper", "c.txt"), 5)
	if err := os.MkdirAll(filepath.Join(dir, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	delta, err := s.Add(dir)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if delta.Count != 3 || delta.Size != 12 {
		t.Errorf("Add() = %+v, want 3 files of 12 bytes", delta)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("directory still exists after Add(): %v", err)
	}
	assertCounters(t, s)

	delta, err = s.Restore(dir, 0)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if delta.Count != 3 || delta.Size != 12 {
		t.Errorf("Restore() = %+v, want 3 files of 12 bytes", delta)
	}
	for _, name := range []string{"a.txt", "sub/b.txt", "sub/deeper/c.txt", "empty"} {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name))); err != nil {
			t.Errorf("%s was not restored: %v", name, err)
		}
	}
	if s.Count() != 0 || s.Size() != 0 {
		t.Errorf("counters = (%d, %d), want empty", s.Count(), s.Size())
	}
	assertCounters(t, s)
}

func TestRemoveDirectory(t *testing.T) {
	s := newTestStore(t, nil)
	dir := filepath.Join(t.TempDir(), "d")
	writeFile(t, filepath.Join(dir, "x"), 2)
	writeFile(t, filepath.Join(dir, "y", "z"), 3)
	if _, err := s.Add(dir); err != nil {
		t.Fatal(err)
	}

	removal, err := s.Remove(dir, 0)
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if removal.Count != 2 || removal.Size != 5 || len(removal.Removed) != 2 {
		t.Errorf("Remove() = %+v", removal)
	}
	if s.Count() != 0 {
		t.Errorf("Count() = %d, want 0", s.Count())
	}
	found, err := s.Search(dir, search.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 0 {
		t.Errorf("Search() after Remove() = %v", found)
	}
}

func TestRemoveSingleVersion(t *testing.T) {
	s := newTestStore(t, nil)
	file := filepath.Join(t.TempDir(), "v")
	for _, size := range []int{1, 2, 3} {
		writeFile(t, file, size)
		if _, err := s.Add(file); err != nil {
			t.Fatal(err)
		}
	}

	// index past the oldest is clamped
	removal, err := s.Remove(file, 10)
	if err != nil {
		t.Fatal(err)
	}
	if removal.Size != 1 {
		t.Errorf("Remove(10) removed %d bytes, want the oldest (1)", removal.Size)
	}

	removal, err = s.Remove(file, 0)
	if err != nil {
		t.Fatal(err)
	}
	if removal.Size != 3 {
		t.Errorf("Remove(0) removed %d bytes, want the newest (3)", removal.Size)
	}
	assertCounters(t, s)
	if s.Count() != 1 || s.Size() != 2 {
		t.Errorf("counters = (%d, %d), want (1, 2)", s.Count(), s.Size())
	}

	if _, err := s.Remove(filepath.Join(filepath.Dir(file), "missing"), 0); !IsNoVersions(err) {
		t.Errorf("Remove() of missing path error = %v, want ErrNoVersions", err)
	}
}

func TestSearch(t *testing.T) {
	s := newTestStore(t, nil)
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.png", "sub/d.txt"} {
		writeFile(t, filepath.Join(dir, filepath.FromSlash(name)), 1)
	}
	for _, name := range []string{"a.txt", "b.txt", "c.png", "sub"} {
		if _, err := s.Add(filepath.Join(dir, name)); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name string
		mask string
		opts search.Options
		want []string
	}{
		{"glob", "*.txt", search.Options{}, []string{"a.txt", "b.txt"}},
		{"literal", "c.png", search.Options{}, []string{"c.png"}},
		{"directory", "*", search.Options{}, []string{"a.txt", "b.txt", "c.png", "sub"}},
		{"recursive find all", "*.txt", search.Options{Recursive: true, FindAll: true}, []string{"a.txt", "b.txt", "sub/d.txt"}},
		{"no match", "*.go", search.Options{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := s.Search(filepath.Join(dir, tt.mask), tt.opts)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(found) != len(tt.want) {
				t.Fatalf("Search() = %v, want %v", found, tt.want)
			}
			for _, name := range tt.want {
				if _, ok := found[filepath.Join(dir, filepath.FromSlash(name))]; !ok {
					t.Errorf("Search() is missing %s: %v", name, found)
				}
			}
		})
	}
}

func TestSearchEmptyTrash(t *testing.T) {
	s := newTestStore(t, nil)
	found, err := s.Search(filepath.Join(t.TempDir(), "nothing", "*"), search.Options{Recursive: true})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(found) != 0 {
		t.Errorf("Search() = %v, want empty", found)
	}
}

func TestEntries(t *testing.T) {
	s := newTestStore(t, nil)
	dir := t.TempDir()
	for i, name := range []string{"first", "second", "third"} {
		writeFile(t, filepath.Join(dir, name), i+1)
		if _, err := s.Add(filepath.Join(dir, name)); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.Entries()
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Entries() = %v, want 3", entries)
	}
	for i, name := range []string{"first", "second", "third"} {
		if entries[i].Path != filepath.Join(dir, name) || entries[i].Size != int64(i+1) {
			t.Errorf("Entries()[%d] = %+v", i, entries[i])
		}
	}

	removal, err := s.RemoveVersion(entries[1].Path, entries[1].DeletedAt)
	if err != nil {
		t.Fatalf("RemoveVersion() error = %v", err)
	}
	if removal.Count != 1 || removal.Size != 2 {
		t.Errorf("RemoveVersion() = %+v", removal)
	}
	if s.Count() != 2 {
		t.Errorf("Count() = %d, want 2", s.Count())
	}
}

func TestProtocols(t *testing.T) {
	s := newTestStore(t, nil)
	file := filepath.Join(t.TempDir(), "p")
	writeFile(t, file, 1)
	if _, err := s.Add(file); err != nil {
		t.Fatal(err)
	}

	protocols, err := s.Protocols()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.VolumeName(file) + string(filepath.Separator)
	if len(protocols) != 1 || protocols[0] != want {
		t.Errorf("Protocols() = %v, want [%s]", protocols, want)
	}
}

func TestRemoveEntry(t *testing.T) {
	s := newTestStore(t, nil)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "f"), 4)
	if _, err := s.Add(filepath.Join(dir, "f")); err != nil {
		t.Fatal(err)
	}
	internal, err := s.codec.ToInternal(filepath.Join(dir, "f"))
	if err != nil {
		t.Fatal(err)
	}
	odd := internal + "_rmdt=01_rmmsec=000_"
	writeFile(t, odd, 3)
	if err := s.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := s.Lock(); err != nil {
		t.Fatal(err)
	}

	entries, err := s.Entries()
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Stored != odd {
		t.Fatalf("Entries() = %+v, want the odd stamp first", entries)
	}

	removal, err := s.RemoveEntry(entries[0])
	if err != nil {
		t.Fatalf("RemoveEntry() error = %v", err)
	}
	if removal.Count != 1 || removal.Size != 3 {
		t.Errorf("RemoveEntry() = %+v", removal)
	}
	if fileExists(odd) || !fileExists(entries[1].Stored) {
		t.Error("RemoveEntry() deleted the wrong file")
	}
	assertCounters(t, s)

	outside := Entry{Stored: filepath.Join(dir, "elsewhere")}
	if _, err := s.RemoveEntry(outside); !errors.Is(err, ErrUnsafePath) {
		t.Errorf("RemoveEntry() outside the trash error = %v, want ErrUnsafePath", err)
	}
}

func TestSearchBraceAndBackslashNames(t *testing.T) {
	s := newTestStore(t, nil)
	dir := t.TempDir()
	names := []string{"a{b}.txt", `back\slash.txt`, "x[1].txt", "ab.txt"}
	for _, name := range names {
		writeFile(t, filepath.Join(dir, name), 1)
		if _, err := s.Add(filepath.Join(dir, name)); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		mask string
		want string
	}{
		{"a{b}.txt", "a{b}.txt"},
		{`back\slash.txt`, `back\slash.txt`},
		{search.QuoteMeta("x[1].txt"), "x[1].txt"},
		{"x[[]1[]].txt", "x[1].txt"},
	}
	for _, tt := range tests {
		found, err := s.Search(filepath.Join(dir, tt.mask), search.Options{})
		if err != nil {
			t.Fatalf("Search(%q) error = %v", tt.mask, err)
		}
		if len(found) != 1 || len(found[filepath.Join(dir, tt.want)]) != 1 {
			t.Errorf("Search(%q) = %v, want one version of %s", tt.mask, found, tt.want)
		}
	}

	for _, name := range names {
		if _, err := s.Restore(filepath.Join(dir, name), 0); err != nil {
			t.Errorf("Restore(%q) error = %v", name, err)
		}
	}
	assertCounters(t, s)
	if s.Count() != 0 {
		t.Errorf("Count() = %d, want 0", s.Count())
	}
}
