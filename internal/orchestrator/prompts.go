package orchestrator

import "strings"

// placeholder is the single substitution slot every catalog body carries.
// Rendering never re-expands the substituted text, so an OCR document
// that itself contains the placeholder string cannot inject a second
// template turn.
const placeholder = "{{ORIGINAL_TEXT}}"

// template is one Prompt Catalog entry: a system preamble plus a user
// body with exactly one placeholder slot.
type template struct {
	Preamble string
	Body     string
}

const basePreamble = `Please improve the following OCR text by:
1. Correcting spelling and OCR errors
2. Fixing formatting and spacing issues
3. Preserving the original structure and meaning
4. Maintaining all important information

IMPORTANT: Return ONLY the corrected text, without any explanations or comments.`

var catalog = map[DocumentType]template{
	DocumentGeneral: {
		Preamble: basePreamble,
		Body:     "Original OCR text:\n\n" + placeholder + "\n\nCorrected text:",
	},
	DocumentCode: {
		Preamble: basePreamble + "\n\nThis appears to be code or technical documentation. Please preserve code syntax and technical terms.",
		Body:     "Original OCR text:\n\n" + placeholder + "\n\nCorrected text:",
	},
	DocumentInvoice: {
		Preamble: basePreamble + "\n\nThis appears to be an invoice or receipt. Please preserve numbers, dates, and financial information accurately.",
		Body:     "Original OCR text:\n\n" + placeholder + "\n\nCorrected text:",
	},
	DocumentForm: {
		Preamble: basePreamble + "\n\nThis appears to be a form. Please preserve field labels and structure.",
		Body:     "Original OCR text:\n\n" + placeholder + "\n\nCorrected text:",
	},
	DocumentHandwritten: {
		Preamble: basePreamble + "\n\nThis appears to be handwritten text transcribed by OCR; expect a higher error rate around letter shapes and spacing.",
		Body:     "Original OCR text:\n\n" + placeholder + "\n\nCorrected text:",
	},
	DocumentMultilingual: {
		Preamble: basePreamble + "\n\nThis document mixes more than one language; preserve each language's own text rather than translating between them unless instructed otherwise.",
		Body:     "Original OCR text:\n\n" + placeholder + "\n\nCorrected text:",
	},
}

// vietnameseInstruction is appended to the preamble whenever the caller's
// TargetLanguage is "vi", mirroring the tone-mark guidance and worked
// examples the original enhancement prompt carried.
const vietnameseInstruction = `
CRITICAL: If the text is in Vietnamese, you MUST add proper tone marks (dấu thanh):
   - à, á, ả, ã, ạ for 'a'
   - è, é, ẻ, ẽ, ẹ for 'e'
   - ì, í, ỉ, ĩ, ị for 'i'
   - ò, ó, ỏ, õ, ọ for 'o'
   - ù, ú, ủ, ũ, ụ for 'u'
   - ỳ, ý, ỷ, ỹ, ỵ for 'y'
   - đ for 'd'
   - And all compound vowels: ă, â, ê, ô, ơ, ư with their tones
If the text is in another language, translate it to Vietnamese with proper tone marks.
Examples:
   - "Truong Dai hoc" -> "Trường Đại học"
   - "Ha Noi" -> "Hà Nội"
   - "Viet Nam" -> "Việt Nam"`

const englishInstruction = "\nTranslate to English if the text is in another language."

// lookupTemplate fetches the catalog entry for dt, falling back to
// general when dt is not covered (fallback reports true so the caller
// can surface it in the result metadata).
func lookupTemplate(dt DocumentType) (template, bool) {
	if tmpl, ok := catalog[dt]; ok {
		return tmpl, false
	}
	return catalog[DocumentGeneral], true
}

// renderPreamble appends the language-specific instruction block, if any,
// to a catalog preamble.
func renderPreamble(tmpl template, targetLanguage string) string {
	switch targetLanguage {
	case "vi":
		return tmpl.Preamble + vietnameseInstruction
	case "en":
		return tmpl.Preamble + englishInstruction
	default:
		return tmpl.Preamble
	}
}

// renderBody substitutes text into the template's single placeholder,
// literally, with no re-expansion of anything text itself might contain.
func renderBody(tmpl template, text string) string {
	return strings.Replace(tmpl.Body, placeholder, text, 1)
}

// visionPromptFor builds the standalone prompt used for image-attached
// requests, which carries no separate preamble/body split.
func visionPromptFor(targetLanguage string) string {
	base := "Please extract and correct the text from this image, fixing any OCR errors."
	switch targetLanguage {
	case "vi":
		base += " " + strings.TrimPrefix(vietnameseInstruction, "\n") + "\nReturn ONLY the corrected text."
	case "en":
		base += " If text is in another language, translate to English. Return ONLY the corrected text."
	default:
		base += " Return ONLY the corrected text."
	}
	return base
}
