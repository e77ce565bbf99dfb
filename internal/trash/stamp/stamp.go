// Package stamp encodes deletion times into trashed file names.
//
// A stamped name has the form
//
//	<path>_rmdt=<epoch seconds>_rmmsec=<microseconds>_
//
// and the same parser is applied to directory names, which never carry a
// stamp, so decoding is permissive: anything that is not a well formed
// suffix decodes to "no time".
package stamp

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/vtrash/vtrash/internal/trash/search"
)

const (
	secPrefix  = "_rmdt="
	usecPrefix = "_rmmsec="
	suffix     = "_"

	maskSuffix = secPrefix + "*" + usecPrefix + "*" + suffix
)

// ErrNoVersions is returned by Nth when a path has no stamped version.
var ErrNoVersions = errors.New("no versions found")

// Add appends the stamp of t to path. A nil t returns path unchanged.
func Add(path string, t *time.Time) string {
	if t == nil {
		return path
	}
	u := t.UTC()
	return fmt.Sprintf("%s%s%d%s%d%s", path, secPrefix, u.Unix(), usecPrefix, u.Nanosecond()/1000, suffix)
}

// Split separates the stamp from path. When path does not end with a valid
// stamp it is returned as is together with a nil time.
func Split(path string) (string, *time.Time) {
	body, ok := strings.CutSuffix(path, suffix)
	if !ok {
		return path, nil
	}

	i := strings.LastIndex(body, usecPrefix)
	if i < 0 {
		return path, nil
	}
	usecStr := body[i+len(usecPrefix):]
	body = body[:i]

	j := strings.LastIndex(body, secPrefix)
	if j < 0 {
		return path, nil
	}
	secStr := body[j+len(secPrefix):]
	name := body[:j]

	sec, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil {
		return path, nil
	}
	usec, err := strconv.ParseInt(usecStr, 10, 64)
	if err != nil || usec < 0 || usec >= 1e6 {
		return path, nil
	}

	t := time.Unix(sec, usec*1000).UTC()
	return name, &t
}

// ExtendMask extends a file mask so that it matches any stamped version of
// the names it matched before.
func ExtendMask(mask string) string {
	return mask + maskSuffix
}

// Versions returns the deletion times of every stamped sibling of path,
// newest first. A missing parent directory yields no versions.
func Versions(path string) ([]time.Time, error) {
	dir, name := filepath.Split(path)
	mask := ExtendMask(search.QuoteMeta(name))

	var versions []time.Time
	for found, err := range search.Search(dir, "", mask, search.Options{}) {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, nil
			}
			return nil, err
		}
		// the mask also matches names that merely start with name
		original, t := Split(found)
		if t == nil || filepath.Base(original) != name {
			continue
		}
		versions = append(versions, *t)
	}

	sortNewestFirst(versions)
	return versions, nil
}

// Nth returns the stamped path of the index-th newest version of path.
// index is clamped: anything past the oldest version selects the oldest,
// a negative one selects the newest.
func Nth(path string, index int) (string, error) {
	versions, err := Versions(path)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", fmt.Errorf("%s: %w", path, ErrNoVersions)
	}
	index = max(0, min(index, len(versions)-1))
	return Add(path, &versions[index]), nil
}

// Pair is an original path together with one of its deletion times.
type Pair struct {
	Path string
	Time time.Time
}

// Group groups pairs by path, each list of times sorted newest first.
func Group(pairs []Pair) map[string][]time.Time {
	grouped := lo.GroupBy(pairs, func(p Pair) string { return p.Path })
	return lo.MapValues(grouped, func(ps []Pair, _ string) []time.Time {
		times := lo.Map(ps, func(p Pair, _ int) time.Time { return p.Time })
		sortNewestFirst(times)
		return times
	})
}

// FromPaths splits the stamp of every path and groups the result. Paths
// without a stamp are ignored.
func FromPaths(paths []string) map[string][]time.Time {
	var pairs []Pair
	for _, p := range paths {
		if original, t := Split(p); t != nil {
			pairs = append(pairs, Pair{Path: original, Time: *t})
		}
	}
	return Group(pairs)
}

func sortNewestFirst(times []time.Time) {
	slices.SortFunc(times, func(a, b time.Time) int { return b.Compare(a) })
}
