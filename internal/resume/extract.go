// Package resume turns uploaded resume documents into text and keeps the
// originals, plus archived interview transcripts, in S3-compatible object
// storage.
package resume

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// MIME types accepted by Extract.
const (
	MIMEText = "text/plain"
	MIMEPDF  = "application/pdf"
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// MaxUploadBytes bounds an uploaded document.
const MaxUploadBytes = 10 << 20

// ErrUnsupportedType is returned for documents that are not PDF, DOCX or
// plain text.
var ErrUnsupportedType = errors.New("resume: unsupported file type")

// DetectMIME resolves the document type from an explicit content type, falling
// back to the file extension. Parameters such as charset are ignored.
func DetectMIME(contentType, filename string) string {
	ct := strings.TrimSpace(strings.ToLower(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case MIMEText, MIMEPDF, MIMEDOCX:
		return ct
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md":
		return MIMEText
	case ".pdf":
		return MIMEPDF
	case ".docx":
		return MIMEDOCX
	}
	return ct
}

// Extract returns the plain text of a resume document.
func Extract(mime string, data []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch mime {
	case MIMEText:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("resume: extract text: invalid utf-8")
		}
		text = string(data)
	case MIMEPDF:
		text, err = extractPDF(data)
	case MIMEDOCX:
		text, err = extractDOCX(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, mime)
	}
	if err != nil {
		return "", err
	}
	return normalize(text), nil
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("resume: read pdf: %w", err)
	}
	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func extractDOCX(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("resume: read docx: %w", err)
	}
	defer doc.Close()
	return stripXML(doc.Editable().GetContent()), nil
}

// stripXML drops the WordprocessingML markup returned by the docx reader,
// turning paragraph ends into newlines.
func stripXML(s string) string {
	s = strings.ReplaceAll(s, "</w:p>", "\n")
	var sb strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// normalize trims trailing spaces per line and collapses runs of blank lines.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// ReadLimited reads at most MaxUploadBytes from r and fails if more remain.
func ReadLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("resume: read upload: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return nil, fmt.Errorf("resume: upload exceeds %d bytes", MaxUploadBytes)
	}
	return data, nil
}
