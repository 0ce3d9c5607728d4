package data_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pv-nav/data"
)

var _ = Describe("PriceStore", func() {
	var (
		ctx        context.Context
		tz         *time.Location
		now        time.Time
		provider   *fakeProvider
		partitions *data.MemoryPartitionStore
		cache      *data.PriceCache
		store      *data.PriceStore
		reliance   data.Security
	)

	day := func(y, m, d int) time.Time {
		return time.Date(y, time.Month(m), d, 0, 0, 0, 0, tz)
	}

	build := func(symbols data.SymbolMap) {
		resolver := data.NewIdentifierResolver(partitions, symbols, data.ResolverOptions{VendorSuffix: ".NS", FetchByPrimary: true})
		store = data.NewPriceStore(resolver, partitions, provider, cache, data.StoreOptions{
			Location:    tz,
			PaddingDays: 2,
			ProbeDays:   7,
			Now:         func() time.Time { return now },
		})
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		tz, err = time.LoadLocation("Asia/Kolkata")
		Expect(err).To(BeNil())
		now = time.Date(2021, 6, 1, 12, 0, 0, 0, tz)

		provider = newFakeProvider()
		partitions = data.NewMemoryPartitionStore()
		cache, err = data.NewPriceCache(2)
		Expect(err).To(BeNil())

		reliance = data.Security{ISIN: "INE002A01018", Ticker: "RELIANCE"}
		provider.prices["RELIANCE.NS"] = []data.PricePoint{
			{Date: day(2020, 1, 2), Close: 100},
			{Date: day(2020, 1, 3), Close: 110},
			{Date: day(2020, 1, 6), Close: 105},
		}
		build(nil)
	})

	Context("when no partition exists", func() {
		It("fetches from the next candidate when the primary identifier is empty", func() {
			closePrice, err := store.Close(ctx, reliance, day(2020, 1, 2))
			Expect(err).To(BeNil())
			Expect(closePrice).To(Equal(100.0))
			Expect(provider.Calls()).To(Equal([]string{"INE002A01018", "RELIANCE.NS"}))
		})

		It("persists the fetched partition under the resolved identifier", func() {
			_, err := store.Close(ctx, reliance, day(2020, 1, 2))
			Expect(err).To(BeNil())

			exists, err := partitions.Exists(ctx, data.PartitionRef{Identifier: "RELIANCE.NS", FY: 2020})
			Expect(err).To(BeNil())
			Expect(exists).To(BeTrue())

			series, err := partitions.Load(ctx, data.PartitionRef{Identifier: "RELIANCE.NS", FY: 2020})
			Expect(err).To(BeNil())
			Expect(series.Symbol).To(Equal("RELIANCE.NS"))
			Expect(series.Coverage.Begin).To(Equal(day(2019, 3, 30)))
			Expect(series.Coverage.End).To(Equal(day(2020, 4, 2)))
		})

		It("serves later lookups from the cache", func() {
			_, err := store.Close(ctx, reliance, day(2020, 1, 2))
			Expect(err).To(BeNil())
			_, err = store.Close(ctx, reliance, day(2020, 1, 3))
			Expect(err).To(BeNil())
			Expect(provider.Calls()).To(HaveLen(2))
			Expect(partitions.Saves()).To(Equal(1))
		})

		It("creates the partition once under concurrent reads", func() {
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					closePrice, err := store.Close(ctx, reliance, day(2020, 1, 3))
					Expect(err).To(BeNil())
					Expect(closePrice).To(Equal(110.0))
				}()
			}
			wg.Wait()
			Expect(partitions.Saves()).To(Equal(1))
		})

		It("fails once every candidate is exhausted", func() {
			_, err := store.Close(ctx, data.Security{ISIN: "INE000000000", Ticker: "GHOST"}, day(2020, 1, 2))
			Expect(errors.Is(err, data.ErrRemoteFetchExhausted)).To(BeTrue())
			Expect(provider.Calls()).To(Equal([]string{"INE000000000", "GHOST.NS"}))
		})

		It("falls back to the symbol map last", func() {
			provider.prices["^NSEI"] = []data.PricePoint{{Date: day(2020, 1, 2), Close: 12282.2}}
			build(data.StaticSymbolMap{"NIFTY50": "^NSEI"})

			closePrice, err := store.Close(ctx, data.Security{Ticker: "NIFTY50"}, day(2020, 1, 2))
			Expect(err).To(BeNil())
			Expect(closePrice).To(Equal(12282.2))
			Expect(provider.Calls()).To(Equal([]string{"NIFTY50", "NIFTY50.NS", "^NSEI"}))
		})

		It("does not try further candidates after a provider failure", func() {
			provider.errs["INE002A01018"] = data.ErrProviderRequest
			_, err := store.Close(ctx, reliance, day(2020, 1, 2))
			Expect(errors.Is(err, data.ErrProviderRequest)).To(BeTrue())
			Expect(provider.Calls()).To(Equal([]string{"INE002A01018"}))
		})
	})

	Context("when a partition already exists", func() {
		BeforeEach(func() {
			Expect(partitions.Save(ctx, mustSeries(data.PartitionRef{Identifier: "INE002A01018", FY: 2020}, "INE002A01018",
				data.FetchWindow(2020, 2, tz), data.PricePoint{Date: day(2020, 1, 2), Close: 99}))).To(Succeed())
		})

		It("loads it without calling the provider", func() {
			closePrice, err := store.Close(ctx, reliance, day(2020, 1, 2))
			Expect(err).To(BeNil())
			Expect(closePrice).To(Equal(99.0))
			Expect(provider.Calls()).To(BeEmpty())
		})

		It("reports a non-trading day as a miss", func() {
			_, err := store.Close(ctx, reliance, day(2020, 1, 4))
			Expect(errors.Is(err, data.ErrDayClosePriceNotFound)).To(BeTrue())
			Expect(provider.Calls()).To(BeEmpty())
		})

		It("reloads an evicted series from the partition store", func() {
			_, err := store.Close(ctx, reliance, day(2020, 1, 2))
			Expect(err).To(BeNil())

			other := data.Security{ISIN: "INE009A01021", Ticker: "INFY"}
			provider.prices["INFY.NS"] = []data.PricePoint{{Date: day(2020, 1, 2), Close: 735}, {Date: day(2020, 5, 4), Close: 640}}
			_, err = store.Close(ctx, other, day(2020, 1, 2))
			Expect(err).To(BeNil())
			_, err = store.Close(ctx, other, day(2020, 5, 4))
			Expect(err).To(BeNil())
			Expect(cache.Contains(data.CacheKey{SecurityID: "INE002A01018", FY: 2020})).To(BeFalse())

			closePrice, err := store.Close(ctx, reliance, day(2020, 1, 2))
			Expect(err).To(BeNil())
			Expect(closePrice).To(Equal(99.0))
			Expect(provider.Calls()).To(Equal([]string{"INE009A01021", "INFY.NS", "INE009A01021", "INFY.NS"}))
		})
	})

	Context("when the financial year was still open at fetch time", func() {
		It("refreshes the partition for a date past its coverage", func() {
			now = time.Date(2020, 1, 4, 12, 0, 0, 0, tz)
			_, err := store.Close(ctx, reliance, day(2020, 1, 2))
			Expect(err).To(BeNil())

			now = time.Date(2020, 1, 10, 12, 0, 0, 0, tz)
			closePrice, err := store.Close(ctx, reliance, day(2020, 1, 6))
			Expect(err).To(BeNil())
			Expect(closePrice).To(Equal(105.0))
			Expect(partitions.Saves()).To(Equal(2))
		})

		It("does not look past yesterday", func() {
			now = time.Date(2020, 1, 4, 12, 0, 0, 0, tz)
			_, err := store.Close(ctx, reliance, day(2020, 1, 6))
			Expect(errors.Is(err, data.ErrDayClosePriceNotFound)).To(BeTrue())
			Expect(partitions.Saves()).To(Equal(1))
		})
	})

	Context("when a financial year has just opened", func() {
		BeforeEach(func() {
			// 2018-03-30 was Good Friday; FY2019 opened on a Sunday
			provider.prices["RELIANCE.NS"] = []data.PricePoint{
				{Date: day(2018, 3, 29), Close: 923.35},
				{Date: day(2018, 4, 2), Close: 912.1},
			}
			now = time.Date(2018, 4, 2, 20, 0, 0, 0, tz)
		})

		It("reports a day before the first trading day as a miss", func() {
			_, err := store.Close(ctx, reliance, day(2018, 4, 1))
			Expect(errors.Is(err, data.ErrDayClosePriceNotFound)).To(BeTrue())
			Expect(errors.Is(err, data.ErrRemoteFetchExhausted)).To(BeFalse())
			Expect(partitions.Saves()).To(Equal(0))
		})

		It("creates the partition once the year has traded", func() {
			_, err := store.Close(ctx, reliance, day(2018, 4, 1))
			Expect(errors.Is(err, data.ErrDayClosePriceNotFound)).To(BeTrue())

			now = time.Date(2018, 4, 3, 20, 0, 0, 0, tz)
			closePrice, err := store.Close(ctx, reliance, day(2018, 4, 2))
			Expect(err).To(BeNil())
			Expect(closePrice).To(Equal(912.1))
			Expect(partitions.Saves()).To(Equal(1))
		})

		It("still fails for an unknown symbol after the grace period", func() {
			ghost := data.Security{ISIN: "INE000000000", Ticker: "GHOST"}
			_, err := store.Close(ctx, ghost, day(2018, 4, 1))
			Expect(errors.Is(err, data.ErrDayClosePriceNotFound)).To(BeTrue())

			now = time.Date(2018, 4, 20, 20, 0, 0, 0, tz)
			_, err = store.Close(ctx, ghost, day(2018, 4, 19))
			Expect(errors.Is(err, data.ErrRemoteFetchExhausted)).To(BeTrue())
		})
	})

	Describe("probing forward", func() {
		It("returns the next trading day within the bound", func() {
			pt, err := store.CloseOnOrAfter(ctx, reliance, day(2020, 1, 4))
			Expect(err).To(BeNil())
			Expect(pt.Date).To(Equal(day(2020, 1, 6)))
			Expect(pt.Close).To(Equal(105.0))
		})

		It("gives up after the probe bound", func() {
			_, err := store.CloseOnOrAfter(ctx, reliance, day(2020, 1, 7))
			Expect(errors.Is(err, data.ErrDayClosePriceNotFound)).To(BeTrue())
		})
	})
})
