// Package identifier validates namespace and package names against a
// unicode-security-hardened profile and computes the confusable skeleton
// used for collision detection. See spec §4.C1.
package identifier

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/secure/precis"
	"golang.org/x/text/unicode/norm"

	registry "github.com/ipfsreg/registry"
)

// MinLength is the minimum accepted length, in codepoints, of a namespace or
// package name. See spec §4.C1.
const MinLength = 3

// identifierProfile backs the "no invisible/formatting codepoints, conforms
// to the general security profile for identifiers" rule with the PRECIS
// IdentifierClass (RFC 8264), the closest off-the-shelf implementation of
// that profile available in the dependency pack.
var identifierProfile = precis.NewIdentifier(
	precis.BidiRule,
)

// Validate reports an error unless name satisfies every rule in spec §4.C1:
// minimum length, alphabetic first codepoint, no control/punctuation (save
// '-'), no emoji, no invisible formatting codepoints, single-script, and
// conformance to the PRECIS identifier security profile.
func Validate(name string) error {
	const op = "identifier.Validate"
	if n := len([]rune(name)); n < MinLength {
		return registry.New(op, registry.ErrBadRequest, nil,
			fmt.Sprintf("identifier %q shorter than minimum length %d", name, MinLength))
	}

	runes := []rune(name)
	if !unicode.IsLetter(runes[0]) {
		return registry.New(op, registry.ErrBadRequest, nil,
			fmt.Sprintf("identifier %q must start with an alphabetic codepoint", name))
	}

	for _, r := range runes {
		switch {
		case unicode.IsControl(r):
			return registry.New(op, registry.ErrBadRequest, nil,
				fmt.Sprintf("identifier %q contains a control character", name))
		case isDisallowedPunctuation(r):
			return registry.New(op, registry.ErrBadRequest, nil,
				fmt.Sprintf("identifier %q contains disallowed punctuation %q", name, r))
		case isEmoji(r):
			return registry.New(op, registry.ErrBadRequest, nil,
				fmt.Sprintf("identifier %q contains an emoji codepoint", name))
		case isInvisible(r):
			return registry.New(op, registry.ErrBadRequest, nil,
				fmt.Sprintf("identifier %q contains an invisible/formatting codepoint", name))
		}
	}

	if _, err := identifierProfile.String(name); err != nil {
		return registry.New(op, registry.ErrBadRequest, err,
			fmt.Sprintf("identifier %q fails the identifier security profile", name))
	}

	if !isSingleScript(runes) {
		return registry.New(op, registry.ErrBadRequest, nil,
			fmt.Sprintf("identifier %q mixes scripts", name))
	}

	return nil
}

// isDisallowedPunctuation reports whether r is ASCII punctuation other than
// '-'.
func isDisallowedPunctuation(r rune) bool {
	if r == '-' {
		return false
	}
	return r < unicode.MaxASCII && unicode.IsPunct(r)
}

// isEmoji reports whether r has the Emoji_Presentation or
// Extended_Pictographic unicode properties. Go's unicode tables don't carry
// the emoji data properties directly, so this approximates them via the
// blocks that carry the overwhelming majority of emoji usage; a purpose-built
// emoji-property table is out of scope for this dependency pack (see
// DESIGN.md).
func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // misc symbols, pictographs, supplemental symbols
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r == 0x2764 || r == 0x2B50 || r == 0x2B55:
		return true
	case r >= 0xFE00 && r <= 0xFE0F: // variation selectors, incl. emoji presentation selector
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators (flags)
		return true
	default:
		return false
	}
}

// isInvisible reports whether r is a formatting, non-spacing, or
// zero-width codepoint.
func isInvisible(r rune) bool {
	if unicode.Is(unicode.Cf, r) { // format
		return true
	}
	if unicode.Is(unicode.Mn, r) { // nonspacing mark
		return true
	}
	switch r {
	case '​', '‌', '‍', '\uFEFF': // ZWSP, ZWNJ, ZWJ, BOM
		return true
	}
	return false
}

// isSingleScript reports whether every rune in name belongs to the same
// unicode script, or to "Common"/"Inherited" (which are allowed alongside
// any single script per the Unicode restriction-level model's
// Single Script level).
func isSingleScript(runes []rune) bool {
	var script *unicode.RangeTable
	scriptName := func(r rune) (string, *unicode.RangeTable) {
		for name, table := range unicode.Scripts {
			if name == "Common" || name == "Inherited" {
				continue
			}
			if unicode.Is(table, r) {
				return name, table
			}
		}
		return "", nil
	}

	for _, r := range runes {
		if unicode.Is(unicode.Common, r) || unicode.Is(unicode.Inherited, r) {
			continue
		}
		name, table := scriptName(r)
		if table == nil {
			continue // codepoint with no assigned script; neither blocks nor confirms single-script
		}
		if script == nil {
			script = table
			_ = name
			continue
		}
		if script != table {
			return false
		}
	}
	return true
}

// Skeleton computes the confusable skeleton of name: NFD-normalize, map each
// codepoint through the confusables table (see confusables.go), then
// NFD-normalize again and fold to lowercase. Two identifiers with equal
// skeletons are visually confusable and must collide under the database's
// uniqueness constraint. See spec §4.C1 and the GLOSSARY.
func Skeleton(name string) string {
	decomposed := norm.NFD.String(name)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if mapped, ok := confusableSkeleton[r]; ok {
			b.WriteString(mapped)
			continue
		}
		b.WriteRune(r)
	}
	folded := norm.NFD.String(strings.ToLower(b.String()))
	return folded
}
