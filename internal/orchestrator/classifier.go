package orchestrator

import "regexp"

var (
	codeFenceRe   = regexp.MustCompile("```")
	codeKeywordRe = regexp.MustCompile(`(?i)\b(function|class|import|def|package|#include|public\s+static|const\s+\w+\s*=|=>)\b`)

	currencyRe = regexp.MustCompile(`[$€£¥]\s?\d`)
	dateRe     = regexp.MustCompile(`\b\d{1,4}[-/]\d{1,2}[-/]\d{1,4}\b`)

	formFieldRe = regexp.MustCompile(`(?im)^\s*[A-Za-z][A-Za-z ]{1,30}:\s*\S.{0,19}$`)
)

// classify assigns a DocumentType by regex/keyword heuristics, in the
// order code > invoice > form > general. The caller always receives a
// concrete type, never DocumentUnknown.
func classify(text string) DocumentType {
	if codeFenceRe.MatchString(text) || codeKeywordRe.MatchString(text) {
		return DocumentCode
	}
	if currencyRe.MatchString(text) && dateRe.MatchString(text) {
		return DocumentInvoice
	}
	if len(formFieldRe.FindAllString(text, -1)) >= 2 {
		return DocumentForm
	}
	return DocumentGeneral
}
