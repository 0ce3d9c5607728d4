package nav_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/penny-vault/pv-nav/data"
	"github.com/penny-vault/pv-nav/ledger"
	"github.com/penny-vault/pv-nav/nav"
)

var _ = Describe("IndexEngine", func() {
	var (
		ctx    context.Context
		tz     *time.Location
		nifty  data.Security
		prices *fakePrices
		sink   *nav.MemorySink
		clock  nav.Clock
	)

	day := func(d int) time.Time {
		return time.Date(2020, 1, d, 0, 0, 0, 0, tz)
	}

	credit := func(d int, amount int64) ledger.CashEvent {
		return ledger.CashEvent{Date: day(d), IsCredit: true, Amount: decimal.NewFromInt(amount)}
	}

	debit := func(d int, amount int64) ledger.CashEvent {
		return ledger.CashEvent{Date: day(d), IsCredit: false, Amount: decimal.NewFromInt(amount)}
	}

	run := func(events ...ledger.CashEvent) (*nav.IndexEngine, error) {
		cash, err := ledger.NewCashLedger(events)
		Expect(err).To(BeNil())
		engine := nav.NewIndexEngine(nifty, cash, prices, sink, clock)
		return engine, engine.Run(ctx)
	}

	dec := func(s string) decimal.Decimal {
		return decimal.RequireFromString(s)
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		tz, err = time.LoadLocation("Asia/Kolkata")
		Expect(err).To(BeNil())

		nifty = data.Security{Ticker: "NIFTY50"}
		prices = newFakePrices()
		prices.set(nifty, day(2), 100)
		prices.set(nifty, day(3), 110)
		prices.set(nifty, day(6), 120)
		prices.set(nifty, day(7), 125)

		sink = &nav.MemorySink{}
		clock = nav.Clock{
			Location: tz,
			Now:      func() time.Time { return time.Date(2020, 1, 7, 12, 0, 0, 0, tz) },
		}
	})

	It("buys units with the day zero deposit", func() {
		clock.Through = day(2)
		engine, err := run(credit(2, 1000))
		Expect(err).To(BeNil())
		Expect(engine.State()).To(Equal(nav.StateDone))

		Expect(sink.Index).To(HaveLen(1))
		rec := sink.Index[0]
		Expect(rec.Date).To(Equal(day(2)))
		Expect(rec.DayPayin.Equal(dec("1000"))).To(BeTrue())
		Expect(rec.DayPayout.IsZero()).To(BeTrue())
		Expect(rec.AmountInvested.Equal(dec("1000"))).To(BeTrue())
		Expect(rec.Units).To(BeNumerically("~", 10, 1e-9))
		Expect(rec.NAV).To(BeNumerically("~", 1000, 1e-9))
	})

	It("values the units on a following trading day without activity", func() {
		clock.Through = day(3)
		_, err := run(credit(2, 1000))
		Expect(err).To(BeNil())

		Expect(sink.Index).To(HaveLen(2))
		rec := sink.Index[1]
		Expect(rec.DayPayin.IsZero()).To(BeTrue())
		Expect(rec.Units).To(BeNumerically("~", 10, 1e-9))
		Expect(rec.NAV).To(BeNumerically("~", 1100, 1e-9))
	})

	It("skips non-trading days without activity", func() {
		_, err := run(credit(2, 1000))
		Expect(err).To(BeNil())

		dates := make([]time.Time, 0, len(sink.Index))
		for _, rec := range sink.Index {
			dates = append(dates, rec.Date)
		}
		Expect(dates).To(Equal([]time.Time{day(2), day(3), day(6)}))
	})

	It("stops at yesterday", func() {
		_, err := run(credit(2, 1000))
		Expect(err).To(BeNil())
		Expect(sink.Index[len(sink.Index)-1].Date).To(Equal(day(6)))
	})

	It("nets a deposit and a withdrawal on the same day", func() {
		_, err := run(credit(2, 1000), credit(6, 500), debit(6, 200))
		Expect(err).To(BeNil())

		rec := sink.Index[2]
		Expect(rec.Date).To(Equal(day(6)))
		Expect(rec.DayPayin.Equal(dec("300"))).To(BeTrue())
		Expect(rec.DayPayout.IsZero()).To(BeTrue())
		Expect(rec.AmountInvested.Equal(dec("1300"))).To(BeTrue())
		Expect(rec.Units).To(BeNumerically("~", 12.5, 1e-9))
		Expect(rec.NAV).To(BeNumerically("~", 1500, 1e-9))
	})

	It("sells units on a net withdrawal", func() {
		_, err := run(credit(2, 1000), debit(3, 550))
		Expect(err).To(BeNil())

		rec := sink.Index[1]
		Expect(rec.DayPayin.IsZero()).To(BeTrue())
		Expect(rec.DayPayout.Equal(dec("550"))).To(BeTrue())
		Expect(rec.AmountInvested.Equal(dec("450"))).To(BeTrue())
		Expect(rec.Units).To(BeNumerically("~", 5, 1e-9))
		Expect(rec.NAV).To(BeNumerically("~", 550, 1e-9))
	})

	It("records neither pay-in nor pay-out when they cancel", func() {
		_, err := run(credit(2, 1000), credit(3, 200), debit(3, 200))
		Expect(err).To(BeNil())

		rec := sink.Index[1]
		Expect(rec.DayPayin.IsZero()).To(BeTrue())
		Expect(rec.DayPayout.IsZero()).To(BeTrue())
		Expect(rec.AmountInvested.Equal(dec("1000"))).To(BeTrue())
	})

	It("keeps nav equal to units times close and never records both flows", func() {
		_, err := run(credit(2, 1000), debit(3, 120), credit(3, 20), credit(6, 75), debit(6, 300))
		Expect(err).To(BeNil())

		for _, rec := range sink.Index {
			Expect(rec.NAV).To(BeNumerically("~", rec.Units*rec.Close, 1e-9))
			Expect(rec.DayPayin.IsPositive() && rec.DayPayout.IsPositive()).To(BeFalse())
		}
	})

	Context("when a close is missing", func() {
		It("fails on activity during a market holiday and keeps earlier records", func() {
			engine, err := run(credit(2, 1000), credit(4, 100))
			Expect(errors.Is(err, nav.ErrMarketClosedWithActivity)).To(BeTrue())
			Expect(engine.State()).To(Equal(nav.StateFailed))
			Expect(sink.Index).To(HaveLen(2))

			last, ok := engine.Last()
			Expect(ok).To(BeTrue())
			Expect(last.Date).To(Equal(day(3)))
		})

		It("fails when day zero is not a trading day", func() {
			engine, err := run(credit(4, 1000))
			Expect(errors.Is(err, nav.ErrDayZeroNotTradingDay)).To(BeTrue())
			Expect(engine.State()).To(Equal(nav.StateFailed))
			Expect(sink.Index).To(BeEmpty())
		})

		It("aborts on any other price failure", func() {
			prices.errs[nifty.Key()] = data.ErrRemoteFetchExhausted
			_, err := run(credit(2, 1000))
			Expect(errors.Is(err, data.ErrRemoteFetchExhausted)).To(BeTrue())
		})
	})

	It("fails without cash events", func() {
		engine, err := run()
		Expect(errors.Is(err, nav.ErrNoEvents)).To(BeTrue())
		Expect(engine.State()).To(Equal(nav.StateFailed))
	})

	It("cannot run twice", func() {
		engine, err := run(credit(2, 1000))
		Expect(err).To(BeNil())
		Expect(errors.Is(engine.Run(ctx), nav.ErrEngineState)).To(BeTrue())
	})

	It("produces identical records when replayed", func() {
		events := []ledger.CashEvent{credit(2, 1000), debit(3, 333), credit(6, 71), credit(6, 29)}
		_, err := run(events...)
		Expect(err).To(BeNil())
		first := nav.IndexDigest(sink.Index)

		sink = &nav.MemorySink{}
		_, err = run(events...)
		Expect(err).To(BeNil())
		Expect(nav.IndexDigest(sink.Index)).To(Equal(first))
	})

	Describe("resuming", func() {
		It("continues from the last record without re-applying its events", func() {
			events := []ledger.CashEvent{credit(2, 1000), debit(3, 330), credit(6, 600)}
			_, err := run(events...)
			Expect(err).To(BeNil())
			full := sink.Index

			sink = &nav.MemorySink{}
			clock.Through = day(3)
			_, err = run(events...)
			Expect(err).To(BeNil())
			head := sink.Index

			clock.Through = time.Time{}
			cash, err := ledger.NewCashLedger(events)
			Expect(err).To(BeNil())
			resumed := nav.NewIndexEngine(nifty, cash, prices, sink, clock)
			Expect(resumed.Resume(head[len(head)-1])).To(Succeed())
			Expect(resumed.Run(ctx)).To(Succeed())

			Expect(nav.IndexDigest(sink.Index)).To(Equal(nav.IndexDigest(full)))
		})

		It("rejects a record for another benchmark", func() {
			cash, err := ledger.NewCashLedger([]ledger.CashEvent{credit(2, 1000)})
			Expect(err).To(BeNil())
			engine := nav.NewIndexEngine(nifty, cash, prices, sink, clock)
			err = engine.Resume(nav.IndexRecord{Ticker: "SENSEX", Date: day(2)})
			Expect(errors.Is(err, nav.ErrResumeMismatch)).To(BeTrue())
		})
	})

	It("works against the price store", func() {
		partitions := data.NewMemoryPartitionStore()
		series, err := data.NewSeries(data.PartitionRef{Identifier: "NIFTY50", FY: 2020}, "",
			data.Interval{Begin: day(2), End: day(3)},
			[]data.PricePoint{{Date: day(2), Close: 12282.2}, {Date: day(3), Close: 12226.65}})
		Expect(err).To(BeNil())
		Expect(partitions.Save(ctx, series)).To(Succeed())
		cache, err := data.NewPriceCache(4)
		Expect(err).To(BeNil())
		resolver := data.NewIdentifierResolver(partitions, nil, data.ResolverOptions{})
		store := data.NewPriceStore(resolver, partitions, nil, cache, data.StoreOptions{Location: tz, Now: clock.Now})

		clock.Through = day(3)
		cash, err := ledger.NewCashLedger([]ledger.CashEvent{credit(2, 122822)})
		Expect(err).To(BeNil())
		engine := nav.NewIndexEngine(nifty, cash, store, sink, clock)
		Expect(engine.Run(ctx)).To(Succeed())

		Expect(sink.Index).To(HaveLen(2))
		Expect(sink.Index[0].Units).To(BeNumerically("~", 10, 1e-9))
		Expect(sink.Index[1].NAV).To(BeNumerically("~", 122266.5, 1e-6))
	})

	It("skips the idle first days of a new financial year", func() {
		at := func(m, d int) time.Time {
			return time.Date(2018, time.Month(m), d, 0, 0, 0, 0, tz)
		}
		provider := stubProvider{"NIFTY50": {
			{Date: at(3, 28), Close: 10184.15},
			{Date: at(3, 29), Close: 10113.7},
			{Date: at(4, 2), Close: 10211.8},
		}}
		partitions := data.NewMemoryPartitionStore()
		cache, err := data.NewPriceCache(4)
		Expect(err).To(BeNil())
		resolver := data.NewIdentifierResolver(partitions, nil, data.ResolverOptions{VendorSuffix: ".NS", FetchByPrimary: true})

		now := time.Date(2018, 4, 2, 20, 0, 0, 0, tz)
		clock.Now = func() time.Time { return now }
		store := data.NewPriceStore(resolver, partitions, provider, cache, data.StoreOptions{Location: tz, PaddingDays: 2, Now: clock.Now})

		cash, err := ledger.NewCashLedger([]ledger.CashEvent{{Date: at(3, 28), IsCredit: true, Amount: dec("101841.5")}})
		Expect(err).To(BeNil())
		engine := nav.NewIndexEngine(nifty, cash, store, sink, clock)
		Expect(engine.Run(ctx)).To(Succeed())
		Expect(engine.State()).To(Equal(nav.StateDone))
		Expect(sink.Index).To(HaveLen(2))

		now = time.Date(2018, 4, 3, 20, 0, 0, 0, tz)
		resumed := nav.NewIndexEngine(nifty, cash, store, sink, clock)
		Expect(resumed.Resume(sink.Index[1])).To(Succeed())
		Expect(resumed.Run(ctx)).To(Succeed())
		Expect(sink.Index).To(HaveLen(3))
		Expect(sink.Index[2].Date).To(Equal(at(4, 2)))
		Expect(sink.Index[2].NAV).To(BeNumerically("~", 10*10211.8, 1e-6))
	})
})
