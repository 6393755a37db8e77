package loader

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFLoader extracts the plain text of every page of a PDF file.
type PDFLoader struct{}

func (PDFLoader) Load(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	total := r.NumPage()
	for pageNum := 1; pageNum <= total; pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extracting text from page %d: %w", pageNum, err)
		}
		sb.WriteString(text)
		if pageNum < total {
			sb.WriteString("\n\n")
		}
	}
	return sb.String(), nil
}
