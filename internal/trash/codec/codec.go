// Package codec maps external absolute paths to their location inside a
// trash root and back.
//
// The leading segment of a path (the "protocol": "/" on unix, a volume such
// as `C:\` on windows) is stored as the space-joined decimal code points of
// its characters, so that every absolute path becomes an ordinary relative
// directory under the trash root:
//
//	/tmp/a.txt  ->  <root>/47/tmp/a.txt
package codec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrPathOutsideTrash is returned by ToExternal for paths not rooted under
// the trash directory.
var ErrPathOutsideTrash = errors.New("path is outside of the trash directory")

const sep = string(os.PathSeparator)

// Segments is an ordered list of path segments. The first element is the
// protocol of an absolute path and may contain a separator.
type Segments []string

// Split breaks path into segments. Only Split and Join know about the
// separator.
func Split(path string) Segments {
	clean := filepath.Clean(path)
	vol := filepath.VolumeName(clean)
	rest := clean[len(vol):]

	proto := vol
	if strings.HasPrefix(rest, sep) {
		proto += sep
		rest = strings.TrimPrefix(rest, sep)
	}

	segs := Segments{proto}
	for _, s := range strings.Split(rest, sep) {
		if s == "" || s == "." {
			continue
		}
		segs = append(segs, s)
	}
	return segs
}

// Protocol returns the leading segment.
func (s Segments) Protocol() string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// Join turns the segments back into a path.
func (s Segments) Join() string {
	return filepath.Join(s...)
}

// EncodeProtocol returns the space-joined code points of every character.
func EncodeProtocol(protocol string) string {
	codes := make([]string, 0, len(protocol))
	for _, r := range protocol {
		codes = append(codes, strconv.Itoa(int(r)))
	}
	return strings.Join(codes, " ")
}

// DecodeProtocol reverses EncodeProtocol.
func DecodeProtocol(code string) (string, error) {
	if code == "" {
		return "", nil
	}
	var b strings.Builder
	for _, field := range strings.Split(code, " ") {
		n, err := strconv.Atoi(field)
		if err != nil || n < 0 {
			return "", fmt.Errorf("invalid protocol code %q", code)
		}
		b.WriteRune(rune(n))
	}
	return b.String(), nil
}

// Codec converts paths relative to a trash root.
type Codec struct {
	Root string
}

// New returns a Codec for the given trash root. The root is made absolute.
func New(root string) (Codec, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Codec{}, fmt.Errorf("failed to get absolute path of trash root: %w", err)
	}
	return Codec{Root: abs}, nil
}

// ToInternal returns the location of path inside the trash root.
func (c Codec) ToInternal(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	segs := Split(abs)
	internal := append(Segments{c.Root, EncodeProtocol(segs.Protocol())}, segs[1:]...)
	return internal.Join(), nil
}

// ToExternal returns the original path of an internal trash location.
func (c Codec) ToExternal(internal string) (string, error) {
	abs, err := filepath.Abs(internal)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	rel, err := filepath.Rel(c.Root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+sep) {
		return "", fmt.Errorf("%s: %w", internal, ErrPathOutsideTrash)
	}

	segs := Split(rel)[1:]
	proto, err := DecodeProtocol(segs[0])
	if err != nil {
		return "", fmt.Errorf("%s: %w", internal, err)
	}
	segs[0] = proto
	return segs.Join(), nil
}
