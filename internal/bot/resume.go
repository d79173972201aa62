package bot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"code.sajari.com/docconv"
	"github.com/gabriel-vasile/mimetype"
)

// MaxResumeSize caps resume uploads.
const MaxResumeSize = 10 << 20

var (
	ErrUnsupportedDocument = errors.New("unsupported document type")
	ErrDocumentTooLarge    = errors.New("document is too large")
)

// documentTypes are the sniffed MIME types handed to docconv.
var documentTypes = []string{
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/msword",
	"application/vnd.oasis.opendocument.text",
	"text/rtf",
}

// Converter turns a document of the given MIME type into plain text.
type Converter func(r io.Reader, mimeType string) (string, error)

// ResumeExtractor detects the type of an uploaded resume from its content and
// extracts its text.
type ResumeExtractor struct {
	convert Converter
}

func NewResumeExtractor() *ResumeExtractor {
	return &ResumeExtractor{convert: docconvConvert}
}

// NewResumeExtractorWith uses convert instead of docconv.
func NewResumeExtractorWith(convert Converter) *ResumeExtractor {
	return &ResumeExtractor{convert: convert}
}

func (e *ResumeExtractor) Extract(data []byte) (string, error) {
	if len(data) > MaxResumeSize {
		return "", ErrDocumentTooLarge
	}

	mt := mimetype.Detect(data)
	if mt.Is("text/plain") {
		return strings.TrimSpace(string(data)), nil
	}

	for _, t := range documentTypes {
		if !mt.Is(t) {
			continue
		}
		text, err := e.convert(bytes.NewReader(data), t)
		if err != nil {
			return "", fmt.Errorf("convert %s: %w", t, err)
		}
		return strings.TrimSpace(text), nil
	}

	return "", fmt.Errorf("%w: %s", ErrUnsupportedDocument, mt.String())
}

func docconvConvert(r io.Reader, mimeType string) (string, error) {
	res, err := docconv.Convert(r, mimeType, true)
	if err != nil {
		return "", err
	}
	return res.Body, nil
}
