package orchestrator

import (
	"strings"
	"unicode"
)

var vietnameseToneRunes = buildVietnameseToneSet()

func buildVietnameseToneSet() map[rune]bool {
	const chars = "àáảãạăằắẳẵặâầấẩẫậèéẻẽẹêềếểễệìíỉĩịòóỏõọôồốổỗộơờớởỡợùúủũụưừứửữựỳýỷỹỵđ"
	set := make(map[rune]bool, len(chars))
	for _, r := range chars {
		set[r] = true
	}
	return set
}

// hasVietnameseTones reports whether text contains at least one
// Vietnamese tone-marked rune.
func hasVietnameseTones(text string) bool {
	lower := strings.ToLower(text)
	for _, r := range lower {
		if vietnameseToneRunes[r] {
			return true
		}
	}
	return false
}

// detectImprovements compares original and enhanced text and returns an
// advisory tag set. Tags are opportunistic: absence of a tag is not
// evidence the corresponding correction didn't happen, only that this
// heuristic didn't notice it.
func detectImprovements(original, enhanced string) []string {
	var tags []string

	if hasDigitToLetterSubstitution(original, enhanced) {
		tags = append(tags, "digit→letter substitutions corrected")
	}
	if punctuationAdded(original, enhanced) {
		tags = append(tags, "punctuation added")
	}
	if diacriticsAdded(original, enhanced) {
		tags = append(tags, "diacritics added")
	}
	if strings.Count(original, "\n") != strings.Count(enhanced, "\n") {
		tags = append(tags, "line breaks normalized")
	}

	switch {
	case len(enhanced) > int(float64(len(original))*1.1):
		tags = append(tags, "content added")
	case len(enhanced) < int(float64(len(original))*0.9):
		tags = append(tags, "content removed")
	}

	if !strings.EqualFold(original, enhanced) {
		tags = append(tags, "spelling/grammar corrected")
	}

	return tags
}

// hasDigitToLetterSubstitution is a coarse character-class comparison: a
// common OCR failure mode swaps a digit for a look-alike letter (0<->O,
// 1<->l/I, 3<->E, 5<->S). We flag it when the enhanced text has fewer
// digits and more letters than the original; lengths are not compared.
func hasDigitToLetterSubstitution(original, enhanced string) bool {
	origDigits := countClass(original, unicode.IsDigit)
	enhDigits := countClass(enhanced, unicode.IsDigit)
	origLetters := countClass(original, unicode.IsLetter)
	enhLetters := countClass(enhanced, unicode.IsLetter)
	return enhDigits < origDigits && enhLetters > origLetters
}

func punctuationAdded(original, enhanced string) bool {
	return countClass(enhanced, unicode.IsPunct) > countClass(original, unicode.IsPunct)
}

func diacriticsAdded(original, enhanced string) bool {
	return countDiacritics(enhanced) > countDiacritics(original)
}

func countClass(s string, class func(rune) bool) int {
	n := 0
	for _, r := range s {
		if class(r) {
			n++
		}
	}
	return n
}

func countDiacritics(s string) int {
	n := 0
	for _, r := range s {
		if r > unicode.MaxASCII && (unicode.IsLetter(r)) {
			n++
		}
	}
	return n
}
