package concept

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// noiseSuffixes are trailing words that carry no identity of their own,
// meaning roughly "the concept of" / "overview of". Stripping them folds
// "梯度下降的概念" and "梯度下降" into the same key.
var noiseSuffixes = []string{"的概念", "概念", "简介"}

// NormalizeLexical performs deterministic text canonicalization: trim
// surrounding whitespace, lowercase ASCII letters (ideographs and other
// non-ASCII runes pass through unchanged), and strip a trailing noise suffix
// when at least one character remains. Pure function, no I/O.
func NormalizeLexical(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, ch := range text {
		if ch < utf8.RuneSelf {
			b.WriteRune(unicode.ToLower(ch))
		} else {
			b.WriteRune(ch)
		}
	}
	text = b.String()

	// Stripping one suffix can expose another ("x概念简介"), so repeat
	// until stable; this keeps NormalizeLexical idempotent.
	for changed := true; changed; {
		changed = false
		for _, suffix := range noiseSuffixes {
			if !strings.HasSuffix(text, suffix) {
				continue
			}
			stripped := strings.TrimSpace(strings.TrimSuffix(text, suffix))
			if stripped != "" {
				text = stripped
				changed = true
			}
		}
	}

	return text
}
