// Package orchestrator renders a provider-neutral prompt for a piece of
// OCR text, dispatches it through a manager.Manager, and validates the
// response before handing back an EnhancementResult.
package orchestrator

// DocumentType is a closed enumeration; prompt lookup is exhaustive over
// these values plus DocumentUnknown, which triggers classification.
type DocumentType string

const (
	DocumentUnknown      DocumentType = "unknown"
	DocumentGeneral      DocumentType = "general"
	DocumentCode         DocumentType = "code"
	DocumentInvoice      DocumentType = "invoice"
	DocumentForm         DocumentType = "form"
	DocumentHandwritten  DocumentType = "handwritten"
	DocumentMultilingual DocumentType = "multilingual"
)

// EnhancementRequest is the Orchestrator's invocation contract.
type EnhancementRequest struct {
	Text            string
	DocumentType    DocumentType
	Image           []byte
	PreferVision    bool
	AlreadyEnhanced bool
	TargetLanguage  string // e.g. "vi"; empty means no language-specific validation
}

// EnhancementResult is the Orchestrator's single return shape. EnhancedText
// is nil whenever no adapter produced an accepted correction: enhancement
// disabled, alreadyEnhanced guard, or every provider failed.
type EnhancementResult struct {
	OriginalText     string
	EnhancedText     *string
	DocumentType     DocumentType
	ProviderUsed     string
	ModelUsed        string
	ElapsedMs        int64
	TokensIn         int
	TokensOut        int
	FallbackOccurred bool
	Improvements     []string
	ErrorMessage     string
}
