// Package extract turns uploaded files into plain text.
//
// The supported formats form a closed set: KindOf maps a MIME type to a Kind and
// Text switches on the Kind. There is no processor registry.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxFileSize is the largest upload accepted, in bytes.
const MaxFileSize = 10 * 1024 * 1024

// Kind is a supported document format.
type Kind int

const (
	KindUnknown Kind = iota
	KindPlainText
	KindMarkdown
	KindPDF
	KindWord
	KindDOCX
)

var kindNames = map[Kind]string{
	KindUnknown:   "unknown",
	KindPlainText: "text",
	KindMarkdown:  "markdown",
	KindPDF:       "pdf",
	KindWord:      "word",
	KindDOCX:      "docx",
}

func (k Kind) String() string { return kindNames[k] }

// Supported reports whether Text can handle the kind.
func (k Kind) Supported() bool { return k != KindUnknown }

// KindOf returns the Kind for a MIME type. Parameters such as charset are ignored.
func KindOf(mimeType string) Kind {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeType))
	}

	switch mediaType {
	case "text/plain":
		return KindPlainText
	case "text/markdown", "text/x-markdown":
		return KindMarkdown
	case "application/pdf":
		return KindPDF
	case "application/msword":
		return KindWord
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return KindDOCX
	default:
		return KindUnknown
	}
}

// extensionTypes covers the supported formats regardless of the host's MIME tables.
var extensionTypes = map[string]string{
	".txt":      "text/plain",
	".text":     "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".pdf":      "application/pdf",
	".doc":      "application/msword",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// TypeByFilename guesses a MIME type from the file extension. It returns "" when
// the extension is unknown.
func TypeByFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return mime.TypeByExtension(ext)
}

// SupportedMIMETypes lists the MIME types KindOf recognises.
func SupportedMIMETypes() []string {
	return []string{
		"text/plain",
		"text/markdown",
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}
}

// Text extracts plain text from data.
func Text(kind Kind, data []byte, filename string) (string, error) {
	switch kind {
	case KindPlainText, KindMarkdown:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%s is not valid UTF-8", filename)
		}
		return string(data), nil
	case KindDOCX:
		return docxText(data)
	case KindPDF:
		// TODO: plug in a PDF text extractor; until then the document is indexed by name only.
		return fmt.Sprintf("[PDF Content from %s] - This would contain the extracted text from the PDF", filename), nil
	case KindWord:
		return fmt.Sprintf("[Word Document Content from %s] - This would contain the extracted text from the Word document", filename), nil
	default:
		return "", fmt.Errorf("unsupported file type")
	}
}

// docxText reads the paragraphs of word/document.xml.
func docxText(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("invalid docx archive: %w", err)
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read document.xml: %w", err)
		}
		return parseDocumentXML(content)
	}
	return "", fmt.Errorf("invalid docx archive: word/document.xml missing")
}

type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("parse document.xml: %w", err)
	}

	lines := make([]string, 0, len(doc.Body.Paragraphs))
	for _, p := range doc.Body.Paragraphs {
		var b strings.Builder
		for _, r := range p.Runs {
			for _, t := range r.Text {
				b.WriteString(t.Content)
			}
		}
		if line := strings.TrimSpace(b.String()); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
