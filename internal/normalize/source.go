package normalize

import (
	"path/filepath"
	"strings"
)

// Format is the declared shape of an input source
type Format int

const (
	FormatUnknown     Format = iota
	FormatDelimited          // CSV or TSV text table
	FormatSpreadsheet        // XLSX workbook, first sheet
	FormatDocument           // PDF, one extraction call per page
	FormatImage              // photographed or scanned invoice
)

func (f Format) String() string {
	switch f {
	case FormatDelimited:
		return "delimited"
	case FormatSpreadsheet:
		return "spreadsheet"
	case FormatDocument:
		return "document"
	case FormatImage:
		return "image"
	default:
		return "unknown"
	}
}

// Source is one raw input handed to the Normalizer
type Source struct {
	Name        string
	Format      Format
	Data        []byte
	ContentType string // images only
	Comma       rune   // delimited only
}

// NewSource builds a Source, detecting its format from the filename extension
func NewSource(filename string, data []byte) Source {
	src := Source{Name: filename, Data: data}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		src.Format, src.Comma = FormatDelimited, ','
	case ".tsv":
		src.Format, src.Comma = FormatDelimited, '\t'
	case ".xlsx", ".xlsm":
		src.Format = FormatSpreadsheet
	case ".pdf":
		src.Format, src.ContentType = FormatDocument, "application/pdf"
	case ".png":
		src.Format, src.ContentType = FormatImage, "image/png"
	case ".jpg", ".jpeg":
		src.Format, src.ContentType = FormatImage, "image/jpeg"
	case ".gif":
		src.Format, src.ContentType = FormatImage, "image/gif"
	case ".heic":
		src.Format, src.ContentType = FormatImage, "image/heic"
	case ".heif":
		src.Format, src.ContentType = FormatImage, "image/heif"
	}

	return src
}
