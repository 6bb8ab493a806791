package errors

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DocumentContext locates a failure inside a statement document.
type DocumentContext struct {
	File    string `json:"file"`
	Page    int    `json:"page,omitempty"`
	Line    int    `json:"line,omitempty"`
	Section string `json:"section,omitempty"`
	Value   string `json:"value,omitempty"`
}

// DocumentError is a parse error tied to a specific statement document.
// The batch runner treats these as recoverable: the document is skipped and
// the run continues with the remaining statements.
type DocumentError struct {
	*ReconcilerError
	Doc DocumentContext `json:"document"`
}

// Error implements the error interface with document location appended.
func (e *DocumentError) Error() string {
	loc := fmt.Sprintf("in %s", filepath.Base(e.Doc.File))
	if e.Doc.Page > 0 {
		loc += fmt.Sprintf(" page %d", e.Doc.Page)
	}
	if e.Doc.Line > 0 {
		loc += fmt.Sprintf(" line %d", e.Doc.Line)
	}
	if e.Doc.Section != "" {
		loc += fmt.Sprintf(" section %q", e.Doc.Section)
	}
	return e.ReconcilerError.Error() + " " + loc
}

// Detail returns a multi-line description for verbose CLI output.
func (e *DocumentError) Detail() string {
	lines := []string{fmt.Sprintf("ERROR: %s", e.Message)}
	lines = append(lines, fmt.Sprintf("  File: %s", e.Doc.File))
	if e.Doc.Page > 0 {
		lines = append(lines, fmt.Sprintf("  Page: %d", e.Doc.Page))
	}
	if e.Doc.Line > 0 {
		lines = append(lines, fmt.Sprintf("  Line: %d", e.Doc.Line))
	}
	if e.Doc.Section != "" {
		lines = append(lines, fmt.Sprintf("  Section: %s", e.Doc.Section))
	}
	if e.Doc.Value != "" {
		lines = append(lines, fmt.Sprintf("  Value: %q", e.Doc.Value))
	}
	if e.Suggestion != "" {
		lines = append(lines, fmt.Sprintf("  Suggestion: %s", e.Suggestion))
	}
	return strings.Join(lines, "\n")
}

// NewDocumentError creates a recoverable document-level parse error.
func NewDocumentError(doc DocumentContext, message string, cause error) *DocumentError {
	var base *ReconcilerError
	if cause != nil {
		base = Wrap(cause, CategoryParse, CodeDocumentSkipped, message)
	} else {
		base = New(CategoryParse, CodeDocumentSkipped, message)
	}
	base.WithContext("file", doc.File)
	return &DocumentError{ReconcilerError: base, Doc: doc}
}

// DocumentSkipped wraps any extraction failure as a skip-and-continue
// document error.
func DocumentSkipped(file string, cause error) *DocumentError {
	return NewDocumentError(
		DocumentContext{File: file},
		fmt.Sprintf("statement document could not be extracted: %s", filepath.Base(file)),
		cause,
	).withSkipSuggestion()
}

func (e *DocumentError) withSkipSuggestion() *DocumentError {
	e.WithSuggestion("the document was skipped; inspect it manually or re-export it from the provider portal")
	return e
}
