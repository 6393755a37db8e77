// Package loader turns uploaded files into plain text. Each supported
// format has its own Loader; ForPath picks one from the detected MIME type,
// with a generic fallback for anything unrecognized.
package loader

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Loader extracts a single text blob from a file.
type Loader interface {
	Load(path string) (string, error)
}

// ForPath selects a Loader from the file's MIME type. The type is resolved
// from the extension the way the upload path names files; unknown types get
// the generic fallback loader.
func ForPath(path string) Loader {
	switch mimeType(path) {
	case "application/pdf":
		return PDFLoader{}
	case "text/html":
		return HTMLLoader{}
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/msword":
		return DocxLoader{}
	default:
		if strings.HasPrefix(mimeType(path), "text/") {
			return TextLoader{}
		}
		return FallbackLoader{}
	}
}

func mimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	// mime.TypeByExtension doesn't know office formats on most systems.
	switch ext {
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	case ".md", ".markdown":
		return "text/markdown"
	}
	t := mime.TypeByExtension(ext)
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return t
}

// TextLoader reads a plain-text file as-is, coercing it to valid UTF-8.
type TextLoader struct{}

func (TextLoader) Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading text file: %w", err)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

// FallbackLoader handles unrecognized formats: it reads the raw bytes and
// keeps whatever decodes as printable UTF-8 text.
type FallbackLoader struct{}

func (FallbackLoader) Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}

	var sb strings.Builder
	sb.Grow(len(data))
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		i += size
		if r == utf8.RuneError && size == 1 {
			continue
		}
		if r == 0 {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String(), nil
}
