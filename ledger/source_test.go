package ledger_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock"
	"github.com/shopspring/decimal"

	"github.com/penny-vault/pv-nav/data/database"
	"github.com/penny-vault/pv-nav/ledger"
	"github.com/penny-vault/pv-nav/pgxmockhelper"
)

var _ = Describe("Loading ledgers from the database", func() {
	var (
		ctx    context.Context
		tz     *time.Location
		dbPool pgxmock.PgxConnIface
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		tz, err = time.LoadLocation("Asia/Kolkata")
		Expect(err).To(BeNil())

		dbPool, err = pgxmock.NewConn()
		Expect(err).To(BeNil())
		database.SetPool(dbPool)
	})

	AfterEach(func() {
		dbPool.Close(context.Background())
	})

	It("classifies settlement lines of the bank statement", func() {
		pgxmockhelper.MockCashEvents(dbPool, "../testdata/bank_statement.csv")

		events, err := ledger.LoadCashEvents(ctx, tz)
		Expect(err).To(BeNil())
		Expect(events).To(HaveLen(4))

		Expect(events[0].Date).To(Equal(time.Date(2020, 1, 2, 0, 0, 0, 0, tz)))
		Expect(events[0].IsCredit).To(BeTrue())
		Expect(events[0].Amount.Equal(decimal.NewFromInt(1000))).To(BeTrue())

		Expect(events[2].IsCredit).To(BeFalse())
		Expect(events[2].Amount.Equal(decimal.NewFromInt(200))).To(BeTrue())

		Expect(events[3].Narration).To(Equal("Mutual fund purchase"))
		Expect(dbPool.ExpectationsWereMet()).To(Succeed())
	})

	It("reads the trade report", func() {
		pgxmockhelper.MockTradeEvents(dbPool, "../testdata/trade_report.csv")

		trades, err := ledger.LoadTradeEvents(ctx, tz)
		Expect(err).To(BeNil())
		Expect(trades).To(HaveLen(4))
		Expect(trades[0].Security.ISIN).To(Equal("INE002A01018"))
		Expect(trades[0].Security.Ticker).To(Equal("RELIANCE"))
		Expect(trades[2].IsBuy).To(BeFalse())
		Expect(trades[2].Quantity).To(Equal(int64(10)))
		Expect(dbPool.ExpectationsWereMet()).To(Succeed())
	})
})
