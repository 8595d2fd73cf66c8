package pdfutil

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	pdf "github.com/ledongthuc/pdf"
)

// minReadableChars is the amount of text below which a marksheet is treated
// as a scan without a text layer.
const minReadableChars = 20

// ExtractText reads PDF bytes and returns plain text using ledongthuc/pdf.
func ExtractText(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	doc, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("new pdf reader: %w", err)
	}
	var builder strings.Builder
	total := doc.NumPage()
	for page := 1; page <= total; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", page, err)
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

// Result is the outcome of inspecting one marksheet.
type Result struct {
	Readable bool
	Text     string
	Note     string
}

// Inspect extracts the text of a marksheet and judges whether a reviewer
// can read it without opening the scan. Parse failures are a result, not an
// error.
func Inspect(data []byte) (res Result) {
	defer func() {
		// ledongthuc/pdf panics on some malformed cross-reference tables.
		if r := recover(); r != nil {
			res = Result{Note: fmt.Sprintf("malformed pdf: %v", r)}
		}
	}()
	text, err := ExtractText(data)
	if err != nil {
		return Result{Note: err.Error()}
	}
	return classify(text)
}

func classify(text string) Result {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	if n < minReadableChars {
		return Result{Text: text, Note: fmt.Sprintf("only %d characters of text, probably a scanned image", n)}
	}
	return Result{Readable: true, Text: text, Note: fmt.Sprintf("%d characters of text", n)}
}
