package normalize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"

	"github.com/zombor/auditguard/internal/extraction"
	"github.com/zombor/auditguard/internal/invoice"
)

// mockExtractor is a mock implementation of extraction.Extractor
type mockExtractor struct {
	pages   []extraction.Page
	results map[int][]extraction.Candidate
	errs    map[int]error
}

func newMockExtractor() *mockExtractor {
	return &mockExtractor{
		results: make(map[int][]extraction.Candidate),
		errs:    make(map[int]error),
	}
}

func (m *mockExtractor) Extract(ctx context.Context, page extraction.Page) ([]extraction.Candidate, error) {
	m.pages = append(m.pages, page)
	if err := m.errs[page.Number]; err != nil {
		return nil, err
	}
	return m.results[page.Number], nil
}

func (m *mockExtractor) Close() error {
	return nil
}

// minimalPDF builds a PDF with one line of Helvetica text per page
func minimalPDF(pages ...string) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	kids := ""
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", 4+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	for i, text := range pages {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

var _ = Describe("NewSource", func() {
	DescribeTable("detecting formats",
		func(name string, format Format) {
			Expect(NewSource(name, nil).Format).To(Equal(format))
		},
		Entry("csv", "raw_invoices.csv", FormatDelimited),
		Entry("upper-case csv", "RAW.CSV", FormatDelimited),
		Entry("tsv", "export.tsv", FormatDelimited),
		Entry("xlsx", "ledger.xlsx", FormatSpreadsheet),
		Entry("xlsm", "ledger.xlsm", FormatSpreadsheet),
		Entry("legacy xls", "ledger.xls", FormatUnknown),
		Entry("pdf", "scan.pdf", FormatDocument),
		Entry("jpeg", "photo.jpeg", FormatImage),
		Entry("heic", "IMG_0001.HEIC", FormatImage),
		Entry("unknown", "notes.txt", FormatUnknown),
	)

	It("should use a tab separator for tsv", func() {
		Expect(NewSource("export.tsv", nil).Comma).To(Equal('\t'))
	})
})

var _ = Describe("Normalize", func() {
	var (
		frame *Frame
		table *invoice.Table
	)

	JustBeforeEach(func() {
		table = Normalize(frame)
	})

	When("columns use aliases with inconsistent naming", func() {
		BeforeEach(func() {
			frame = &Frame{
				Columns: []string{" Transaction ID", "Inv No", "Vendor Code", "Total Amount", "PO Value", "Document Date", "Posting Date", "Source Type", "IBAN"},
				Rows: [][]any{
					{"T-1", " INV-9 ", " V001 ", "$1,200.00", "1,000", "2023-03-05", "2023-04-20", "Non-Competitive", "GB29NWBK60161331926819"},
				},
			}
		})

		It("should map every alias onto its canonical field", func() {
			Expect(table.Records).To(HaveLen(1))
			r := table.Records[0]
			Expect(*r.InvoiceID).To(Equal("T-1"))
			Expect(*r.InvoiceNumber).To(Equal("INV-9"))
			Expect(*r.VendorID).To(Equal("V001"))
			Expect(r.Amount).To(Equal(1200.0))
			Expect(r.ContractValue).To(Equal(1000.0))
			Expect(*r.InvoiceDate).To(Equal(time.Date(2023, 3, 5, 0, 0, 0, 0, time.UTC)))
			Expect(*r.EntryDate).To(Equal(time.Date(2023, 4, 20, 0, 0, 0, 0, time.UTC)))
			Expect(*r.ProcurementType).To(Equal("Non-Competitive"))
			Expect(*r.BankAccountNumber).To(Equal("GB29NWBK60161331926819"))
		})

		It("should leave no passthrough columns", func() {
			Expect(table.ExtraColumns).To(BeEmpty())
		})
	})

	When("several aliases for one field are present", func() {
		BeforeEach(func() {
			frame = &Frame{
				Columns: []string{"reference", "inv_no", "amount"},
				Rows:    [][]any{{"REF-1", "INV-1", "10"}},
			}
		})

		It("should pick the alias with the highest priority", func() {
			Expect(*table.Records[0].InvoiceNumber).To(Equal("INV-1"))
		})

		It("should pass the other alias through", func() {
			Expect(table.ExtraColumns).To(Equal([]string{"reference"}))
			Expect(table.Records[0].Extra).To(HaveKeyWithValue("reference", "REF-1"))
		})
	})

	When("required fields are missing", func() {
		BeforeEach(func() {
			frame = &Frame{
				Columns: []string{"vendor_id"},
				Rows:    [][]any{{"V001"}},
			}
		})

		It("should default the currency fields", func() {
			Expect(table.Records[0].Amount).To(Equal(MissingAmount))
			Expect(table.Records[0].ContractValue).To(Equal(MissingAmount))
		})

		It("should leave the other fields absent", func() {
			r := table.Records[0]
			Expect(r.InvoiceID).To(BeNil())
			Expect(r.InvoiceNumber).To(BeNil())
			Expect(r.InvoiceDate).To(BeNil())
			Expect(r.EntryDate).To(BeNil())
			Expect(r.ProcurementType).To(BeNil())
			Expect(r.BankAccountNumber).To(BeNil())
		})
	})

	When("a present currency cell is blank", func() {
		BeforeEach(func() {
			frame = &Frame{
				Columns: []string{"amount", "contract_value"},
				Rows:    [][]any{{"", "abc"}},
			}
		})

		It("should collapse to zero rather than the missing-column default", func() {
			Expect(table.Records[0].Amount).To(Equal(0.0))
			Expect(table.Records[0].ContractValue).To(Equal(0.0))
		})
	})

	When("a row is shorter than the header", func() {
		BeforeEach(func() {
			frame = &Frame{
				Columns: []string{"vendor_id", "amount", "invoice_date"},
				Rows:    [][]any{{"V001"}},
			}
		})

		It("should treat the missing cells as empty", func() {
			Expect(table.Records[0].Amount).To(Equal(0.0))
			Expect(table.Records[0].InvoiceDate).To(BeNil())
		})
	})

	When("normalized names collide", func() {
		BeforeEach(func() {
			frame = &Frame{
				Columns: []string{"Amount", "amount"},
				Rows:    [][]any{{"1", "2"}},
			}
		})

		It("should keep the first occurrence", func() {
			Expect(table.Records[0].Amount).To(Equal(1.0))
			Expect(table.ExtraColumns).To(BeEmpty())
		})
	})

	When("the frame has no rows", func() {
		BeforeEach(func() {
			frame = &Frame{Columns: []string{"vendor_id", "amount"}}
		})

		It("should return an empty table", func() {
			Expect(table).NotTo(BeNil())
			Expect(table.Empty()).To(BeTrue())
		})
	})

	When("the frame is nil", func() {
		BeforeEach(func() {
			frame = nil
		})

		It("should return an empty table", func() {
			Expect(table.Empty()).To(BeTrue())
		})
	})

	Describe("schema closure", func() {
		It("should produce typed canonical records for every subset of alias columns", func() {
			columns := []string{"inv_id", "invoice_no", "supplier_id", "invoice_amt", "contract_limit", "date_of_invoice", "created_at", "category", "account_no"}
			values := []any{"7", "INV-7", "V7", "700", "800", "2023-01-01", "2023-01-02", "Competitive", "ACC-7"}

			for mask := 0; mask < 1<<len(columns); mask++ {
				f := &Frame{}
				var row []any
				for i := range columns {
					if mask&(1<<i) != 0 {
						f.Columns = append(f.Columns, columns[i])
						row = append(row, values[i])
					}
				}
				f.Rows = [][]any{row}
				if len(f.Columns) == 0 {
					continue
				}

				out := Normalize(f)
				Expect(out.Records).To(HaveLen(1))
				Expect(out.ExtraColumns).To(BeEmpty())
				r := out.Records[0]
				Expect(r.InvoiceID != nil).To(Equal(mask&(1<<0) != 0))
				Expect(r.VendorID != nil).To(Equal(mask&(1<<2) != 0))
				if mask&(1<<3) == 0 {
					Expect(r.Amount).To(Equal(MissingAmount))
				} else {
					Expect(r.Amount).To(Equal(700.0))
				}
				Expect(r.InvoiceDate != nil).To(Equal(mask&(1<<5) != 0))
			}
		})
	})

	Describe("idempotence", func() {
		It("should leave an already-canonical table unchanged", func() {
			first := Normalize(&Frame{
				Columns: []string{"Vendor Code", "Total Amount", "Invoice Date", "Notes", "reference"},
				Rows: [][]any{
					{"V001", "$49,999", "2023-01-01", "urgent", "R-1"},
					{"V002", "", "garbage", "", "R-2"},
				},
			})
			second := Normalize(FrameOf(first))
			Expect(second).To(Equal(first))
		})
	})
})

var _ = Describe("Normalizer", func() {
	var (
		extractor  *mockExtractor
		normalizer *Normalizer
		src        Source
		table      *invoice.Table
	)

	BeforeEach(func() {
		extractor = newMockExtractor()
		normalizer = New(extractor)
	})

	JustBeforeEach(func() {
		table = normalizer.Process(context.Background(), src)
	})

	When("processing a CSV", func() {
		BeforeEach(func() {
			src = NewSource("raw_invoices.csv", []byte(
				"\ufeffinvoice_id,invoice_number,vendor_id,amount,invoice_date,entry_date,procurement_type,bank_account_number\n"+
					"1,INV-100,V001,49999,2023-01-01,2023-02-15,Competitive,ACC-123\n"+
					"\n"+
					"2,INV-100,V001,49999,2023-01-01,2023-02-15,Competitive,ACC-123\n"+
					"3,INV-102,V002,1500000,2023-03-01,2023-03-02,Non-Competitive,ACC-999\n"))
		})

		It("should return every data row", func() {
			Expect(table.Records).To(HaveLen(3))
		})

		It("should strip the byte order mark from the header", func() {
			Expect(*table.Records[0].InvoiceID).To(Equal("1"))
		})

		It("should default the missing contract value", func() {
			Expect(table.Records[2].ContractValue).To(Equal(MissingAmount))
		})

		It("should not call the extractor", func() {
			Expect(extractor.pages).To(BeEmpty())
		})
	})

	When("processing a TSV", func() {
		BeforeEach(func() {
			src = NewSource("export.tsv", []byte("vendor_id\tamount\nV001\t1,000\n"))
		})

		It("should split on tabs", func() {
			Expect(table.Records).To(HaveLen(1))
			Expect(table.Records[0].Amount).To(Equal(1000.0))
		})
	})

	When("processing an XLSX workbook", func() {
		BeforeEach(func() {
			f := excelize.NewFile()
			sheet := f.GetSheetName(0)
			Expect(f.SetSheetRow(sheet, "A1", &[]any{"Supplier ID", "Invoice Amt", "Posting Date"})).To(Succeed())
			Expect(f.SetSheetRow(sheet, "A2", &[]any{"V010", "₹75,000", "2023-03-31"})).To(Succeed())
			buf, err := f.WriteToBuffer()
			Expect(err).NotTo(HaveOccurred())
			src = NewSource("ledger.xlsx", buf.Bytes())
		})

		It("should read the first sheet", func() {
			Expect(table.Records).To(HaveLen(1))
			Expect(*table.Records[0].VendorID).To(Equal("V010"))
			Expect(table.Records[0].Amount).To(Equal(75000.0))
			Expect(table.Records[0].EntryDate).NotTo(BeNil())
		})
	})

	When("the spreadsheet is corrupt", func() {
		BeforeEach(func() {
			src = NewSource("ledger.xlsx", []byte("not a zip file"))
		})

		It("should return an empty table", func() {
			Expect(table).NotTo(BeNil())
			Expect(table.Empty()).To(BeTrue())
		})
	})

	When("the CSV is empty", func() {
		BeforeEach(func() {
			src = NewSource("empty.csv", []byte{})
		})

		It("should return an empty table", func() {
			Expect(table.Empty()).To(BeTrue())
		})
	})

	When("the format is unsupported", func() {
		BeforeEach(func() {
			src = NewSource("notes.txt", []byte("vendor_id\nV001\n"))
		})

		It("should return an empty table", func() {
			Expect(table.Empty()).To(BeTrue())
		})
	})

	When("processing a PDF", func() {
		BeforeEach(func() {
			src = NewSource("invoices.pdf", minimalPDF("Invoice INV-1 from V001", "Invoice INV-2 from V002", "Invoice INV-3 from V003"))
			extractor.results[1] = []extraction.Candidate{{"invoice_number": "INV-1", "vendor_id": "V001", "amount": 100.0}}
			extractor.errs[2] = errors.New("model returned garbage")
			extractor.results[3] = []extraction.Candidate{
				{"invoice_number": "INV-3", "vendor_id": 3.0, "amount": "1,500", "invoice_date": "2023-03-10"},
			}
		})

		It("should send every page's text to the extractor in order", func() {
			Expect(extractor.pages).To(HaveLen(3))
			Expect(extractor.pages[0].Text).To(ContainSubstring("INV-1"))
			Expect(extractor.pages[2].Number).To(Equal(3))
		})

		It("should skip only the failing page", func() {
			Expect(table.Records).To(HaveLen(2))
		})

		It("should coerce extracted values like any other source", func() {
			r := table.Records[1]
			Expect(*r.InvoiceNumber).To(Equal("INV-3"))
			Expect(*r.VendorID).To(Equal("3"))
			Expect(r.Amount).To(Equal(1500.0))
			Expect(r.ContractValue).To(Equal(MissingAmount))
		})
	})

	When("processing an image", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2)))).To(Succeed())
			src = NewSource("photo.png", buf.Bytes())
			extractor.results[1] = []extraction.Candidate{{"vendor_id": "V001"}}
		})

		It("should send a single image page", func() {
			Expect(extractor.pages).To(HaveLen(1))
			Expect(extractor.pages[0].Image).NotTo(BeEmpty())
			Expect(table.Records).To(HaveLen(1))
		})
	})

	When("the extractor returns nothing", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2)))).To(Succeed())
			src = NewSource("photo.png", buf.Bytes())
		})

		It("should return an empty table", func() {
			Expect(table.Empty()).To(BeTrue())
		})
	})

	When("no extractor is configured", func() {
		BeforeEach(func() {
			normalizer = New(nil)
			src = NewSource("invoices.pdf", minimalPDF("Invoice INV-1"))
		})

		It("should return an empty table", func() {
			Expect(table.Empty()).To(BeTrue())
		})
	})
})
