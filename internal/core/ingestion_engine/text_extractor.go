package ingestion_engine

import (
	"bytes"
	"fmt"
	"mime"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"

	"github.com/markdave123-py/Kaleem/internal/apperr"
	"github.com/markdave123-py/Kaleem/internal/core"
)

const (
	MediaTypePDF  = "application/pdf"
	MediaTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var _ core.TextExtractor = (*DocumentTextExtractor)(nil)

// DocumentTextExtractor handles PDF, DOCX and any text/* payload.
type DocumentTextExtractor struct{}

func NewDocumentTextExtractor() *DocumentTextExtractor {
	return &DocumentTextExtractor{}
}

// Extract returns the plain text of data. Unknown media types fail with
// KindUnsupportedMediaType; unparsable content fails with KindExtractionFailed.
func (e *DocumentTextExtractor) Extract(data []byte, mediaType string) (string, error) {
	mt := NormalizeMediaType(mediaType)

	switch {
	case mt == MediaTypePDF:
		text, err := extractPDF(data)
		if err != nil {
			return "", apperr.Wrapf(apperr.KindExtractionFailed, "extract", err, "could not read PDF content")
		}
		return text, nil
	case mt == MediaTypeDOCX:
		text, _, err := docconv.ConvertDocx(bytes.NewReader(data))
		if err != nil {
			return "", apperr.Wrapf(apperr.KindExtractionFailed, "extract", err, "could not read DOCX content")
		}
		return text, nil
	case strings.HasPrefix(mt, "text/"):
		return strings.ToValidUTF8(string(data), ""), nil
	}
	return "", apperr.UnsupportedMediaType(mediaType)
}

// NormalizeMediaType lower-cases mt and strips parameters such as charset.
func NormalizeMediaType(mt string) string {
	mt = strings.TrimSpace(mt)
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		return parsed
	}
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// extractPDF concatenates the plain text of every page in page order.
func extractPDF(data []byte) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pt, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		b.WriteString(pt)
		if pt != "" && !strings.HasSuffix(pt, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}
