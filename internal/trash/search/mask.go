package search

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// maxSetSize bounds how many runes a bracket expression may expand to.
const maxSetSize = 4096

var quoter = strings.NewReplacer("*", "[*]", "?", "[?]", "[", "[[]")

// QuoteMeta returns a mask matching s literally.
func QuoteMeta(s string) string {
	return quoter.Replace(s)
}

// translate rewrites a shell mask, in which only "*", "?" and "[...]" are
// special, into gobwas glob syntax. Everything else is literal, including
// "{", "}" and "\". A "[" without a closing "]" is literal too.
func translate(mask string) string {
	rs := []rune(mask)
	var sb strings.Builder
	for i := 0; i < len(rs); i++ {
		switch r := rs[i]; r {
		case '*', '?':
			sb.WriteRune(r)
		case '[':
			set, negate, end, ok := parseBracket(rs, i)
			if !ok {
				sb.WriteString(`\[`)
				continue
			}
			sb.WriteString(bracket(set, negate))
			i = end
		default:
			writeLiteral(&sb, r)
		}
	}
	return sb.String()
}

func writeLiteral(sb *strings.Builder, r rune) {
	switch r {
	case '{', '}', '\\', ',', '[', ']', '*', '?', '!', '-':
		sb.WriteByte('\\')
	}
	sb.WriteRune(r)
}

// parseBracket reads the bracket expression opening at rs[start] and returns
// its members, whether it is negated ("[!...]") and the index of its
// closing "]". A "]" right after the opening (or after "!") is a member.
func parseBracket(rs []rune, start int) (set []rune, negate bool, end int, ok bool) {
	j := start + 1
	if j < len(rs) && rs[j] == '!' {
		negate = true
		j++
	}
	first := j
	if j < len(rs) && rs[j] == ']' {
		j++
	}
	for j < len(rs) && rs[j] != ']' {
		j++
	}
	if j >= len(rs) {
		return nil, false, 0, false
	}

	content := rs[first:j]
	for k := 0; k < len(content); k++ {
		if k+2 < len(content) && content[k+1] == '-' {
			lo, hi := content[k], content[k+2]
			if hi-lo >= maxSetSize {
				return nil, false, 0, false
			}
			for c := lo; c <= hi; c++ {
				set = append(set, c)
			}
			k += 2
			continue
		}
		set = append(set, content[k])
	}
	slices.Sort(set)
	return slices.Compact(set), negate, j, true
}

// bracket renders a member set as a gobwas range. gobwas reads a "-" after
// the first member as a lo-hi range, so a "-" member is written first.
func bracket(set []rune, negate bool) string {
	var sb strings.Builder
	switch {
	case len(set) == 0 && negate:
		return "?"
	case len(set) == 0:
		// a reversed range such as [z-a] matches nothing
		sb.WriteString("[!")
		sb.WriteRune(0)
		sb.WriteByte('-')
		sb.WriteRune(utf8.MaxRune)
		sb.WriteByte(']')
		return sb.String()
	case len(set) == 1 && !negate:
		writeLiteral(&sb, set[0])
		return sb.String()
	}

	sb.WriteByte('[')
	if negate {
		sb.WriteByte('!')
	}
	if i := slices.Index(set, '-'); i >= 0 {
		sb.WriteByte('-')
		set = slices.Delete(slices.Clone(set), i, i+1)
	}
	for _, r := range set {
		switch r {
		case ']', '\\', '!':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte(']')
	return sb.String()
}
