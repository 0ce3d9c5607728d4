package data_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/go-redis/redis/v8"
	"github.com/pashagolub/pgxmock"

	"github.com/penny-vault/pv-nav/data"
	"github.com/penny-vault/pv-nav/data/database"
	"github.com/penny-vault/pv-nav/pgxmockhelper"
)

var _ = Describe("Partition stores", func() {
	var (
		ctx context.Context
		tz  *time.Location
		ref data.PartitionRef
	)

	day := func(y, m, d int) time.Time {
		return time.Date(y, time.Month(m), d, 0, 0, 0, 0, tz)
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		tz, err = time.LoadLocation("Asia/Kolkata")
		Expect(err).To(BeNil())
		ref = data.PartitionRef{Identifier: "RELIANCE.NS", FY: 2020}
	})

	DescribeTable("file partitions",
		func(compress bool, dataFile string) {
			dir, err := os.MkdirTemp("", "pvnav-partitions")
			Expect(err).To(BeNil())
			DeferCleanup(os.RemoveAll, dir)

			store, err := data.NewFilePartitionStore(dir, compress, tz)
			Expect(err).To(BeNil())

			exists, err := store.Exists(ctx, ref)
			Expect(err).To(BeNil())
			Expect(exists).To(BeFalse())

			_, err = store.Load(ctx, ref)
			Expect(errors.Is(err, data.ErrPartitionNotFound)).To(BeTrue())

			series := mustSeries(ref, "RELIANCE.NS", data.FetchWindow(2020, 2, tz),
				data.PricePoint{Date: day(2020, 1, 3), Close: 1537.45},
				data.PricePoint{Date: day(2020, 1, 2), Close: 1535.35},
			)
			Expect(store.Save(ctx, series)).To(Succeed())

			Expect(filepath.Join(dir, dataFile)).To(BeARegularFile())
			Expect(filepath.Join(dir, "RELIANCE.NS_2020.json")).To(BeARegularFile())

			loaded, err := store.Load(ctx, ref)
			Expect(err).To(BeNil())
			Expect(loaded.Points()).To(Equal(series.Points()))
			Expect(loaded.Symbol).To(Equal("RELIANCE.NS"))
			Expect(loaded.Coverage).To(Equal(series.Coverage))
		},
		Entry("stored as plain csv", false, "RELIANCE.NS_2020.csv"),
		Entry("stored as lz4 compressed csv", true, "RELIANCE.NS_2020.csv.lz4"),
	)

	Describe("database partitions", func() {
		var dbPool pgxmock.PgxConnIface

		BeforeEach(func() {
			var err error
			dbPool, err = pgxmock.NewConn()
			Expect(err).To(BeNil())
			database.SetPool(dbPool)
		})

		AfterEach(func() {
			dbPool.Close(context.Background())
		})

		It("checks for an existing partition", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("SELECT count").WithArgs("RELIANCE.NS", 2020).WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
			dbPool.ExpectCommit()

			exists, err := data.NewPgxPartitionStore(tz).Exists(ctx, ref)
			Expect(err).To(BeNil())
			Expect(exists).To(BeTrue())
			Expect(dbPool.ExpectationsWereMet()).To(Succeed())
		})

		It("loads the rows of a partition", func() {
			pgxmockhelper.MockPartitionLoad(dbPool, "../testdata/partition_reliance_2020.csv", "RELIANCE.NS",
				time.Date(2019, 3, 30, 0, 0, 0, 0, time.UTC), time.Date(2020, 4, 2, 0, 0, 0, 0, time.UTC))

			series, err := data.NewPgxPartitionStore(tz).Load(ctx, ref)
			Expect(err).To(BeNil())
			Expect(series.Len()).To(Equal(7))
			Expect(series.Coverage.End).To(Equal(day(2020, 4, 2)))

			closePrice, ok := series.Close(day(2020, 1, 2))
			Expect(ok).To(BeTrue())
			Expect(closePrice).To(Equal(1535.35))
			Expect(dbPool.ExpectationsWereMet()).To(Succeed())
		})

		It("reads closes as exact numeric text", func() {
			begin := time.Date(2019, 3, 30, 0, 0, 0, 0, time.UTC)
			end := time.Date(2020, 4, 2, 0, 0, 0, 0, time.UTC)
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("SELECT vendor_symbol, coverage_begin, coverage_end, fetched_at FROM price_partition").WillReturnRows(
				pgxmock.NewRows([]string{"vendor_symbol", "coverage_begin", "coverage_end", "fetched_at"}).AddRow("RELIANCE.NS", begin, end, end))
			dbPool.ExpectQuery(`SELECT event_date, close::text FROM price_partition_close`).WillReturnRows(
				pgxmock.NewRows([]string{"event_date", "close"}).
					AddRow(time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), "1535.350000").
					AddRow(time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC), "n/a"))
			dbPool.ExpectRollback()

			_, err := data.NewPgxPartitionStore(tz).Load(ctx, ref)
			Expect(err).NotTo(BeNil())
			Expect(dbPool.ExpectationsWereMet()).To(Succeed())
		})

		It("replaces a partition in one transaction", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectExec("DELETE FROM price_partition_close").WithArgs("RELIANCE.NS", 2020).WillReturnResult(pgxmock.NewResult("DELETE", 0))
			dbPool.ExpectCopyFrom(`"price_partition_close"`, []string{"identifier", "fy", "event_date", "close"}).WillReturnResult(2)
			dbPool.ExpectExec("INSERT INTO price_partition").WillReturnResult(pgxmock.NewResult("INSERT", 1))
			dbPool.ExpectCommit()

			series := mustSeries(ref, "RELIANCE.NS", data.FetchWindow(2020, 2, tz),
				data.PricePoint{Date: day(2020, 1, 2), Close: 1535.35},
				data.PricePoint{Date: day(2020, 1, 3), Close: 1537.45},
			)
			Expect(data.NewPgxPartitionStore(tz).Save(ctx, series)).To(Succeed())
			Expect(dbPool.ExpectationsWereMet()).To(Succeed())
		})
	})

	Describe("redis partitions", func() {
		var client *redis.Client

		BeforeEach(func() {
			url := os.Getenv("PVNAV_TEST_REDIS_URL")
			if url == "" {
				Skip("PVNAV_TEST_REDIS_URL not set")
			}
			opt, err := redis.ParseURL(url)
			Expect(err).To(BeNil())
			client = redis.NewClient(opt)
			ref = data.PartitionRef{Identifier: "PVNAV-TEST.NS", FY: 2020}
			Expect(client.Del(ctx, "pvnav:partition:"+ref.String()).Err()).To(Succeed())
			DeferCleanup(client.Close)
		})

		It("round trips a partition", func() {
			store := data.NewRedisPartitionStore(client, tz)

			exists, err := store.Exists(ctx, ref)
			Expect(err).To(BeNil())
			Expect(exists).To(BeFalse())

			_, err = store.Load(ctx, ref)
			Expect(errors.Is(err, data.ErrPartitionNotFound)).To(BeTrue())

			series := mustSeries(ref, "PVNAV-TEST.NS", data.FetchWindow(2020, 2, tz),
				data.PricePoint{Date: day(2020, 1, 2), Close: 1535.35},
				data.PricePoint{Date: day(2020, 1, 3), Close: 1537.45},
			)
			Expect(store.Save(ctx, series)).To(Succeed())

			loaded, err := store.Load(ctx, ref)
			Expect(err).To(BeNil())
			Expect(loaded.Points()).To(Equal(series.Points()))
			Expect(loaded.Coverage).To(Equal(series.Coverage))
		})
	})
})
