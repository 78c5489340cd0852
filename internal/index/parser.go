package index

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// DocumentParser turns the bytes of an uploaded file into plain text
type DocumentParser interface {
	Parse(ctx context.Context, data []byte, filename string) (string, error)
	SupportedFormats() []string
}

// TextParser accepts plain text and markdown as they are
type TextParser struct{}

func (TextParser) Parse(ctx context.Context, data []byte, filename string) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not valid UTF-8 text", filename)
	}
	return string(data), nil
}

func (TextParser) SupportedFormats() []string {
	return []string{".txt", ".md", ".markdown", ""}
}

// PDFParser extracts the text layer of a PDF. Scanned pages without text
// yield nothing and the document is rejected as empty.
type PDFParser struct{}

func (PDFParser) Parse(ctx context.Context, data []byte, filename string) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	// the reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("failed to read pdf %s: %v", filename, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf %s: %w", filename, err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract text from %s: %w", filename, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("failed to extract text from %s: %w", filename, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (PDFParser) SupportedFormats() []string {
	return []string{".pdf"}
}

// DefaultParsers handles text, markdown and PDF
func DefaultParsers() []DocumentParser {
	return []DocumentParser{TextParser{}, PDFParser{}}
}
