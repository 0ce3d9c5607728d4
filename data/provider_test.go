package data_test

import (
	"context"
	"errors"
	"os"
	"regexp"
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pv-nav/data"
)

var _ = Describe("Price providers", func() {
	var (
		ctx context.Context
		tz  *time.Location
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		tz, err = time.LoadLocation("Asia/Kolkata")
		Expect(err).To(BeNil())
		httpmock.Activate()
	})

	AfterEach(func() {
		httpmock.DeactivateAndReset()
	})

	Describe("Yahoo", func() {
		It("maps bars to market days and skips null closes", func() {
			content, err := os.ReadFile("../testdata/yahoo_reliance.json")
			Expect(err).To(BeNil())
			httpmock.RegisterRegexpResponder("GET", regexp.MustCompile(`^https://query1\.finance\.yahoo\.com/v8/finance/chart/RELIANCE\.NS\?`),
				httpmock.NewBytesResponder(200, content))

			yahoo := data.NewYahoo(tz)
			points, err := yahoo.FetchDaily(ctx, "RELIANCE.NS", time.Date(2023, 4, 1, 0, 0, 0, 0, tz), time.Date(2023, 4, 10, 0, 0, 0, 0, tz))
			Expect(err).To(BeNil())
			Expect(points).To(Equal([]data.PricePoint{
				{Date: time.Date(2023, 4, 3, 0, 0, 0, 0, tz), Close: 2339.95},
				{Date: time.Date(2023, 4, 6, 0, 0, 0, 0, tz), Close: 2350.2},
			}))
		})

		It("reports an unknown symbol as an empty result", func() {
			content, err := os.ReadFile("../testdata/yahoo_not_found.json")
			Expect(err).To(BeNil())
			httpmock.RegisterRegexpResponder("GET", regexp.MustCompile(`/v8/finance/chart/`),
				httpmock.NewBytesResponder(404, content))

			points, err := data.NewYahoo(tz).FetchDaily(ctx, "INE000000000", time.Date(2023, 4, 1, 0, 0, 0, 0, tz), time.Date(2023, 4, 10, 0, 0, 0, 0, tz))
			Expect(err).To(BeNil())
			Expect(points).To(BeEmpty())
		})

		It("fails on a server error", func() {
			httpmock.RegisterRegexpResponder("GET", regexp.MustCompile(`/v8/finance/chart/`),
				httpmock.NewStringResponder(500, "upstream unavailable"))

			_, err := data.NewYahoo(tz).FetchDaily(ctx, "RELIANCE.NS", time.Date(2023, 4, 1, 0, 0, 0, 0, tz), time.Date(2023, 4, 10, 0, 0, 0, 0, tz))
			Expect(errors.Is(err, data.ErrProviderRequest)).To(BeTrue())
		})
	})

	Describe("Tiingo", func() {
		It("parses daily closes", func() {
			content, err := os.ReadFile("../testdata/tiingo_prices.json")
			Expect(err).To(BeNil())
			httpmock.RegisterRegexpResponder("GET", regexp.MustCompile(`^https://api\.tiingo\.com/tiingo/daily/infy/prices`),
				httpmock.NewBytesResponder(200, content))

			points, err := data.NewTiingo("TEST", tz).FetchDaily(ctx, "INFY", time.Date(2023, 4, 1, 0, 0, 0, 0, tz), time.Date(2023, 4, 10, 0, 0, 0, 0, tz))
			Expect(err).To(BeNil())
			Expect(points).To(HaveLen(2))
			Expect(points[1].Date).To(Equal(time.Date(2023, 4, 4, 0, 0, 0, 0, tz)))
			Expect(points[1].Close).To(Equal(29.8))
		})
	})

	It("rejects an unknown provider name", func() {
		_, err := data.NewProvider("bloomberg", "", tz)
		Expect(errors.Is(err, data.ErrUnknownProvider)).To(BeTrue())
	})
})
