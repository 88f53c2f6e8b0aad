package extraction

import (
	"context"
	"errors"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockExtractor is a mock implementation of Extractor
type mockExtractor struct {
	calls      int
	candidates []Candidate
	err        error
	closed     bool
}

func (m *mockExtractor) Extract(ctx context.Context, page Page) ([]Candidate, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.candidates, nil
}

func (m *mockExtractor) Close() error {
	m.closed = true
	return nil
}

var _ = Describe("Cache", func() {
	var (
		next  *mockExtractor
		cache *Cache
		page  Page
	)

	BeforeEach(func() {
		next = &mockExtractor{candidates: []Candidate{{"vendor_id": "V001", "amount": 10.0}}}
		var err error
		cache, err = NewCache(filepath.Join(GinkgoT().TempDir(), "cache.db"), "ollama/llama3.2", next)
		Expect(err).NotTo(HaveOccurred())
		page = Page{Number: 1, Text: "Invoice INV-1"}
	})

	AfterEach(func() {
		cache.Close()
	})

	When("a page is extracted twice", func() {
		It("should call the wrapped extractor once", func() {
			_, err := cache.Extract(context.Background(), page)
			Expect(err).NotTo(HaveOccurred())
			again, err := cache.Extract(context.Background(), page)
			Expect(err).NotTo(HaveOccurred())

			Expect(next.calls).To(Equal(1))
			Expect(again).To(HaveLen(1))
			Expect(again[0]).To(HaveKeyWithValue("vendor_id", "V001"))
			Expect(cache.Len()).To(Equal(1))
		})
	})

	When("pages differ", func() {
		It("should call the wrapped extractor for each", func() {
			cache.Extract(context.Background(), page)
			cache.Extract(context.Background(), Page{Number: 2, Text: "Invoice INV-2"})
			Expect(next.calls).To(Equal(2))
		})
	})

	When("a page yields no candidates", func() {
		BeforeEach(func() {
			next.candidates = nil
		})

		It("should cache the empty result", func() {
			cache.Extract(context.Background(), page)
			result, err := cache.Extract(context.Background(), page)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(BeEmpty())
			Expect(next.calls).To(Equal(1))
		})
	})

	When("the wrapped extractor fails", func() {
		BeforeEach(func() {
			next.err = errors.New("model offline")
		})

		It("should return the error and not cache it", func() {
			_, err := cache.Extract(context.Background(), page)
			Expect(err).To(MatchError("model offline"))
			_, err = cache.Extract(context.Background(), page)
			Expect(err).To(HaveOccurred())
			Expect(next.calls).To(Equal(2))
			Expect(cache.Len()).To(Equal(0))
		})
	})

	Describe("Close", func() {
		It("should close the wrapped extractor", func() {
			Expect(cache.Close()).To(Succeed())
			Expect(next.closed).To(BeTrue())
		})
	})
})
