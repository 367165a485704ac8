// Package params reads page entry parameters and persists the last-seen set
// so a reload without a query string resumes the same session.
package params

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/BTreeMap/LaunchPipe/internal/models"
)

// ReadEntryParameters parses the query component of a page address.
//
// Decoding follows application/x-www-form-urlencoded: '+' is a space and
// malformed percent escapes are kept literally. A repeated key keeps the
// value of its last occurrence and the position of its first.
func ReadEntryParameters(address string) *models.ParameterSet {
	return ParseQuery(queryOf(address))
}

// ParseQuery parses a raw query string (without the leading '?').
func ParseQuery(rawQuery string) *models.ParameterSet {
	set := models.NewParameterSet()
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		set.Set(decodeComponent(name), decodeComponent(value))
	}
	return set
}

// OriginOf returns scheme://host of an address, or "" when it has none.
func OriginOf(address string) string {
	u, err := url.Parse(address)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// BaseAddress strips the query and fragment from an address.
func BaseAddress(address string) string {
	u, err := url.Parse(address)
	if err != nil {
		base, _, _ := strings.Cut(address, "?")
		base, _, _ = strings.Cut(base, "#")
		return base
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

func queryOf(address string) string {
	if u, err := url.Parse(address); err == nil {
		return u.RawQuery
	}
	_, query, found := strings.Cut(address, "?")
	if !found {
		return ""
	}
	query, _, _ = strings.Cut(query, "#")
	return query
}

func decodeComponent(s string) string {
	s = strings.ReplaceAll(s, "+", " ")
	decoded, err := url.PathUnescape(s)
	if err != nil {
		decoded = decodeLenient(s)
	}
	return wellFormed(decoded)
}

// wellFormed replaces each maximal invalid UTF-8 subpart with U+FFFD, the
// way a browser decodes escaped bytes such as "%FF".
func wellFormed(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r != utf8.RuneError || size > 1 {
			b.WriteString(s[i : i+size])
			i += size
			continue
		}
		b.WriteRune(utf8.RuneError)
		i += invalidPrefixLen(s[i:])
	}
	return b.String()
}

// invalidPrefixLen returns how many bytes of an invalid sequence at the start
// of s one replacement character stands for: a valid lead byte swallows the
// continuation bytes that could still have completed it.
func invalidPrefixLen(s string) int {
	lead := s[0]
	lo, hi := byte(0x80), byte(0xBF)
	var need int
	switch {
	case lead >= 0xC2 && lead <= 0xDF:
		need = 1
	case lead >= 0xE0 && lead <= 0xEF:
		need = 2
		if lead == 0xE0 {
			lo = 0xA0
		} else if lead == 0xED {
			hi = 0x9F
		}
	case lead >= 0xF0 && lead <= 0xF4:
		need = 3
		if lead == 0xF0 {
			lo = 0x90
		} else if lead == 0xF4 {
			hi = 0x8F
		}
	default:
		return 1
	}
	n := 1
	for n <= need && n < len(s) && s[n] >= lo && s[n] <= hi {
		lo, hi = 0x80, 0xBF
		n++
	}
	return n
}

// decodeLenient decodes valid %XX escapes and keeps invalid ones as-is.
func decodeLenient(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
