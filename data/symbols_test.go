package data_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pv-nav/data"
)

var _ = Describe("Symbol map", func() {
	It("loads a flat yaml mapping with case-insensitive keys", func() {
		symbols, err := data.LoadSymbolMap("../testdata/symbols.yaml")
		Expect(err).To(BeNil())

		symbol, ok := symbols.Lookup("nifty50")
		Expect(ok).To(BeTrue())
		Expect(symbol).To(Equal("^NSEI"))

		symbol, ok = symbols.Lookup("NIFTYBEES")
		Expect(ok).To(BeTrue())
		Expect(symbol).To(Equal("NIFTYBEES.NS"))
	})

	It("treats a missing entry as no mapping", func() {
		symbols, err := data.LoadSymbolMap("../testdata/symbols.yaml")
		Expect(err).To(BeNil())
		_, ok := symbols.Lookup("TCS")
		Expect(ok).To(BeFalse())
	})

	It("returns an empty map without a path", func() {
		symbols, err := data.LoadSymbolMap("")
		Expect(err).To(BeNil())
		Expect(symbols).To(BeEmpty())
	})

	It("fails on a missing file", func() {
		_, err := data.LoadSymbolMap("../testdata/does-not-exist.yaml")
		Expect(err).ToNot(BeNil())
	})
})
