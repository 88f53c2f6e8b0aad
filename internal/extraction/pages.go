package extraction

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"log/slog"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// invoiceExtractionPrompt is the shared prompt used by all LLM providers
const invoiceExtractionPrompt = `You are a data extraction assistant. Extract vendor invoice data from the document below.

Return strictly a JSON ARRAY of objects, one object per invoice. Each object must have these keys (if found):
"invoice_number", "vendor_id", "amount", "contract_value", "invoice_date", "entry_date", "procurement_type", "bank_account_number".

Rules:
1. If a value is missing, use null.
2. Convert dates to YYYY-MM-DD format if possible.
3. Amounts must be numbers without currency symbols or thousands separators.
4. Do NOT include any explanation, markdown, or code blocks. Just the raw JSON array.`

// buildPrompt appends the page text, if any, to the extraction prompt
func buildPrompt(page Page) string {
	if strings.TrimSpace(page.Text) == "" {
		return invoiceExtractionPrompt + "\n\nThe document is the attached image."
	}
	return invoiceExtractionPrompt + "\n\nText to extract from:\n" + page.Text
}

// DocumentPages splits a PDF into pages. Pages with a text layer carry
// their text; pages without one (scans) are rendered to PNG instead.
func DocumentPages(pdfData []byte) ([]Page, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	pages := make([]Page, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			slog.Warn("Failed to extract page text", "page", i+1, "error", err)
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, Page{Number: i + 1, Text: text})
			continue
		}

		img, err := doc.Image(i)
		if err != nil {
			slog.Warn("Failed to render page", "page", i+1, "error", err)
			continue
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			slog.Warn("Failed to encode page", "page", i+1, "error", err)
			continue
		}
		pages = append(pages, Page{Number: i + 1, Image: buf.Bytes()})
	}

	return pages, nil
}

// ImagePage converts a photographed or scanned invoice into a single PNG page
func ImagePage(imageData []byte, contentType string) (Page, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "image/png" && !isHEICFormat(imageData) {
		return Page{Number: 1, Image: imageData}, nil
	}

	pngData, err := imageToPNG(imageData, mimeType)
	if err != nil {
		return Page{}, fmt.Errorf("converting image to PNG: %w", err)
	}
	return Page{Number: 1, Image: pngData}, nil
}

// imageToPNG converts any supported image format to PNG
func imageToPNG(imageData []byte, mimeType string) ([]byte, error) {
	var img image.Image
	var err error

	// Go's standard image package has no HEIC support
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks for an ftyp box with a HEIC-family brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
