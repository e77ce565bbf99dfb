package stamp

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAddSplitRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		path string
		time time.Time
	}{
		{"plain file", "/tmp/a.txt", time.Date(2024, 3, 1, 12, 0, 0, 123456000, time.UTC)},
		{"zero micros", "/tmp/b", time.Unix(1700000000, 0).UTC()},
		{"underscores in name", "/tmp/_rmdt=x_", time.Unix(5, 999999000).UTC()},
		{"nested stamp", Add("/tmp/c", ptr(time.Unix(1, 0))), time.Unix(2, 1000).UTC()},
		{"relative", "a/b/c", time.Unix(0, 0).UTC()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stamped := Add(tt.path, &tt.time)
			path, got := Split(stamped)
			if path != tt.path {
				t.Errorf("Split() path = %q, want %q", path, tt.path)
			}
			if got == nil || !got.Equal(tt.time) {
				t.Errorf("Split() time = %v, want %v", got, tt.time)
			}
		})
	}
}

func TestAddTruncatesToMicroseconds(t *testing.T) {
	ts := time.Unix(10, 1234567).UTC()
	stamped := Add("/x", &ts)
	if want := "/x_rmdt=10_rmmsec=1234_"; stamped != want {
		t.Fatalf("Add() = %q, want %q", stamped, want)
	}
}

func TestAddNil(t *testing.T) {
	if got := Add("/tmp/a", nil); got != "/tmp/a" {
		t.Errorf("Add(nil) = %q", got)
	}
}

func TestSplitWithoutStamp(t *testing.T) {
	tests := []string{
		"",
		"/tmp/a.txt",
		"/tmp/dir",
		"/tmp/a_",
		"/tmp/a_rmmsec=1_",
		"/tmp/a_rmdt=1_",
		"/tmp/a_rmdt=x_rmmsec=1_",
		"/tmp/a_rmdt=1_rmmsec=x_",
		"/tmp/a_rmdt=1_rmmsec=-1_",
		"/tmp/a_rmdt=1_rmmsec=1000000_",
		"/tmp/a_rmdt=1_rmmsec=1",
		"_rmmsec=_rmdt=_",
	}

	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			got, ts := Split(path)
			if got != path || ts != nil {
				t.Errorf("Split(%q) = (%q, %v), want unchanged", path, got, ts)
			}
		})
	}
}

func TestExtendMask(t *testing.T) {
	if got := ExtendMask("*.txt"); got != "*.txt_rmdt=*_rmmsec=*_" {
		t.Errorf("ExtendMask() = %q", got)
	}
}

func TestVersions(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "a.txt")

	times := []time.Time{
		time.Unix(200, 0).UTC(),
		time.Unix(100, 5000).UTC(),
		time.Unix(300, 1000).UTC(),
	}
	for _, ts := range times {
		touch(t, Add(base, &ts))
	}
	// siblings that must not be mistaken for versions of a.txt
	touch(t, Add(filepath.Join(dir, "a.txt.bak"), &times[0]))
	touch(t, Add(filepath.Join(dir, "b.txt"), &times[0]))
	touch(t, base)

	got, err := Versions(base)
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	want := []time.Time{times[2], times[0], times[1]}
	if len(got) != len(want) {
		t.Fatalf("Versions() = %v, want %v", got, want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("Versions()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestVersionsLiteralName(t *testing.T) {
	dir := t.TempDir()
	ts := time.Unix(42, 0).UTC()
	touch(t, Add(filepath.Join(dir, "[ab]*.txt"), &ts))
	touch(t, Add(filepath.Join(dir, "a.txt"), &ts))

	got, err := Versions(filepath.Join(dir, "[ab]*.txt"))
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(got) != 1 || !got[0].Equal(ts) {
		t.Errorf("Versions() = %v, want [%v]", got, ts)
	}
}

func TestVersionsMissingDir(t *testing.T) {
	got, err := Versions(filepath.Join(t.TempDir(), "missing", "a.txt"))
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Versions() = %v, want none", got)
	}
}

func TestNth(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "f")
	older, newer := time.Unix(10, 0).UTC(), time.Unix(20, 0).UTC()
	touch(t, Add(base, &older))
	touch(t, Add(base, &newer))

	tests := []struct {
		index int
		want  time.Time
	}{
		{0, newer},
		{1, older},
		{5, older},
		{-3, newer},
	}

	for _, tt := range tests {
		got, err := Nth(base, tt.index)
		if err != nil {
			t.Fatalf("Nth(%d) error = %v", tt.index, err)
		}
		if want := Add(base, &tt.want); got != want {
			t.Errorf("Nth(%d) = %q, want %q", tt.index, got, want)
		}
	}

	if _, err := Nth(filepath.Join(dir, "g"), 0); !errors.Is(err, ErrNoVersions) {
		t.Errorf("Nth() on missing versions error = %v, want ErrNoVersions", err)
	}
}

func TestFromPaths(t *testing.T) {
	t1, t2, t3 := time.Unix(1, 0).UTC(), time.Unix(2, 0).UTC(), time.Unix(3, 0).UTC()
	got := FromPaths([]string{
		Add("/a", &t1),
		Add("/b", &t2),
		Add("/a", &t3),
		"/dir",
	})

	if len(got) != 2 {
		t.Fatalf("FromPaths() = %v, want 2 keys", got)
	}
	if a := got["/a"]; len(a) != 2 || !a[0].Equal(t3) || !a[1].Equal(t1) {
		t.Errorf("FromPaths()[/a] = %v, want [%v %v]", a, t3, t1)
	}
	if b := got["/b"]; len(b) != 1 || !b[0].Equal(t2) {
		t.Errorf("FromPaths()[/b] = %v", b)
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
}

func ptr[T any](v T) *T { return &v }
