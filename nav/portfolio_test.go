package nav_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pv-nav/data"
	"github.com/penny-vault/pv-nav/ledger"
	"github.com/penny-vault/pv-nav/nav"
)

var _ = Describe("PortfolioEngine", func() {
	var (
		ctx      context.Context
		tz       *time.Location
		reliance data.Security
		tcs      data.Security
		prices   *fakePrices
		sink     *nav.MemorySink
		clock    nav.Clock
	)

	day := func(d int) time.Time {
		return time.Date(2020, 1, d, 0, 0, 0, 0, tz)
	}

	buy := func(d int, sec data.Security, qty int64) ledger.TradeEvent {
		return ledger.TradeEvent{Date: day(d), Security: sec, IsBuy: true, Quantity: qty}
	}

	sell := func(d int, sec data.Security, qty int64) ledger.TradeEvent {
		return ledger.TradeEvent{Date: day(d), Security: sec, IsBuy: false, Quantity: qty}
	}

	engineFor := func(trades ...ledger.TradeEvent) *nav.PortfolioEngine {
		tradeLedger, err := ledger.NewTradeLedger(trades)
		Expect(err).To(BeNil())
		return nav.NewPortfolioEngine(tradeLedger, prices, sink, clock)
	}

	dates := func() []time.Time {
		out := make([]time.Time, 0, len(sink.Portfolio))
		for _, rec := range sink.Portfolio {
			out = append(out, rec.Date)
		}
		return out
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		tz, err = time.LoadLocation("Asia/Kolkata")
		Expect(err).To(BeNil())

		reliance = data.Security{ISIN: "INE002A01018", Ticker: "RELIANCE"}
		tcs = data.Security{ISIN: "INE467B01029", Ticker: "TCS"}

		prices = newFakePrices()
		for d, closes := range map[int][2]float64{
			2: {1509.6, 2167.6},
			3: {1535.3, 2200.2},
			6: {1501.15, 2181.7},
			7: {1521.5, 2205.9},
		} {
			prices.set(reliance, day(d), closes[0])
			prices.set(tcs, day(d), closes[1])
		}

		sink = &nav.MemorySink{}
		clock = nav.Clock{
			Location: tz,
			Now:      func() time.Time { return time.Date(2020, 1, 8, 9, 30, 0, 0, tz) },
		}
	})

	It("values holdings at each day's close", func() {
		engine := engineFor(buy(2, reliance, 10), buy(3, tcs, 4))
		Expect(engine.Run(ctx)).To(Succeed())
		Expect(engine.State()).To(Equal(nav.StateDone))

		Expect(dates()).To(Equal([]time.Time{day(2), day(3), day(6), day(7)}))
		Expect(sink.Portfolio[0].NAV).To(BeNumerically("~", 15096, 1e-6))
		Expect(sink.Portfolio[1].NAV).To(BeNumerically("~", 10*1535.3+4*2200.2, 1e-6))
		Expect(sink.Portfolio[3].NAV).To(BeNumerically("~", 10*1521.5+4*2205.9, 1e-6))
	})

	It("orders holdings by security", func() {
		engine := engineFor(buy(2, tcs, 1), buy(2, reliance, 2))
		Expect(engine.Run(ctx)).To(Succeed())

		Expect(sink.Portfolio[0].Holdings).To(Equal([]ledger.Position{
			{Security: reliance, Quantity: 2},
			{Security: tcs, Quantity: 1},
		}))
	})

	It("drops a position sold to zero and starts it fresh when bought back", func() {
		engine := engineFor(buy(2, reliance, 10), sell(3, reliance, 10), buy(6, reliance, 5))
		Expect(engine.Run(ctx)).To(Succeed())

		Expect(dates()).To(Equal([]time.Time{day(2), day(6), day(7)}))
		Expect(sink.Portfolio[1].Holdings).To(Equal([]ledger.Position{{Security: reliance, Quantity: 5}}))
		Expect(sink.Portfolio[1].NAV).To(BeNumerically("~", 5*1501.15, 1e-6))
	})

	It("forgets an oversold position", func() {
		engine := engineFor(buy(2, reliance, 10), buy(2, tcs, 1), sell(3, reliance, 12), buy(6, reliance, 3))
		Expect(engine.Run(ctx)).To(Succeed())

		Expect(sink.Portfolio[1].Holdings).To(Equal([]ledger.Position{{Security: tcs, Quantity: 1}}))
		Expect(sink.Portfolio[2].Holdings).To(ContainElement(ledger.Position{Security: reliance, Quantity: 3}))
	})

	Context("when a close is missing", func() {
		It("skips a holiday without trades", func() {
			prices.closes[tcs.Key()] = map[string]float64{}
			prices.set(tcs, day(2), 2167.6)
			prices.set(tcs, day(6), 2181.7)

			engine := engineFor(buy(2, reliance, 1), buy(2, tcs, 1))
			Expect(engine.Run(ctx)).To(Succeed())
			Expect(dates()).To(Equal([]time.Time{day(2), day(6)}))
		})

		It("fails when trades fall on a holiday", func() {
			engine := engineFor(buy(2, reliance, 1), buy(4, tcs, 1))
			err := engine.Run(ctx)
			Expect(errors.Is(err, nav.ErrMarketClosedWithActivity)).To(BeTrue())
			Expect(engine.State()).To(Equal(nav.StateFailed))
			Expect(dates()).To(Equal([]time.Time{day(2), day(3)}))
		})

		It("fails when day zero is not a trading day", func() {
			engine := engineFor(buy(5, reliance, 1))
			Expect(errors.Is(engine.Run(ctx), nav.ErrDayZeroNotTradingDay)).To(BeTrue())
			Expect(sink.Portfolio).To(BeEmpty())
		})
	})

	It("never receives a trade with a non-positive quantity", func() {
		_, err := ledger.NewTradeLedger([]ledger.TradeEvent{buy(2, reliance, 1), {Date: day(3), Security: tcs, IsBuy: true}})
		Expect(errors.Is(err, ledger.ErrLedgerIntegrity)).To(BeTrue())
		Expect(sink.Portfolio).To(BeEmpty())
	})

	It("resumes from persisted holdings", func() {
		trades := []ledger.TradeEvent{buy(2, reliance, 10), buy(3, tcs, 4), sell(6, reliance, 3)}
		Expect(engineFor(trades...).Run(ctx)).To(Succeed())
		full := nav.PortfolioDigest(sink.Portfolio)
		head := sink.Portfolio[1]

		sink = &nav.MemorySink{Portfolio: sink.Portfolio[:2]}
		resumed := engineFor(trades...)
		Expect(resumed.Resume(head)).To(Succeed())
		Expect(resumed.Run(ctx)).To(Succeed())

		Expect(resumed.Emitted()).To(Equal(2))
		Expect(nav.PortfolioDigest(sink.Portfolio)).To(Equal(full))
	})

	It("rejects resuming from a non-positive holding", func() {
		engine := engineFor(buy(2, reliance, 1))
		err := engine.Resume(nav.PortfolioRecord{Date: day(2), Holdings: []ledger.Position{{Security: tcs, Quantity: 0}}})
		Expect(errors.Is(err, nav.ErrResumeMismatch)).To(BeTrue())
	})

	It("produces identical records when replayed", func() {
		trades := []ledger.TradeEvent{buy(2, reliance, 7), buy(3, tcs, 3), sell(7, tcs, 1)}
		Expect(engineFor(trades...).Run(ctx)).To(Succeed())
		first := nav.PortfolioDigest(sink.Portfolio)

		sink = &nav.MemorySink{}
		Expect(engineFor(trades...).Run(ctx)).To(Succeed())
		Expect(nav.PortfolioDigest(sink.Portfolio)).To(Equal(first))
	})
})

var _ = Describe("Clock", func() {
	It("never goes past yesterday", func() {
		tz, err := time.LoadLocation("Asia/Kolkata")
		Expect(err).To(BeNil())

		// 20:00 UTC is already the next morning in Kolkata
		now := time.Date(2020, 1, 7, 20, 0, 0, 0, time.UTC)
		clock := nav.Clock{Location: tz, Now: func() time.Time { return now }}
		Expect(clock.LastDay()).To(Equal(time.Date(2020, 1, 7, 0, 0, 0, 0, tz)))

		clock.Through = time.Date(2020, 1, 3, 0, 0, 0, 0, tz)
		Expect(clock.LastDay()).To(Equal(time.Date(2020, 1, 3, 0, 0, 0, 0, tz)))

		clock.Through = time.Date(2020, 2, 1, 0, 0, 0, 0, tz)
		Expect(clock.LastDay()).To(Equal(time.Date(2020, 1, 7, 0, 0, 0, 0, tz)))
	})
})
