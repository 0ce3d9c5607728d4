// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package handler

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/penny-vault/pv-nav/common"
	"github.com/penny-vault/pv-nav/nav"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type indexPoint struct {
	Date           string          `json:"date"`
	DayPayin       decimal.Decimal `json:"day_payin"`
	DayPayout      decimal.Decimal `json:"day_payout"`
	AmountInvested decimal.Decimal `json:"amount_invested"`
	Units          float64         `json:"units"`
	Close          float64         `json:"close"`
	NAV            float64         `json:"nav"`
}

type IndexNAVResponse struct {
	Ticker  string       `json:"ticker"`
	Records []indexPoint `json:"records"`
}

// contentRange sets the Content-Range header for items [offset, end) of n
func contentRange(c *fiber.Ctx, offset, end, n int) {
	if n == 0 || end <= offset {
		c.Append("Content-Range", fmt.Sprintf("items */%d", n))
		return
	}
	c.Append("Content-Range", fmt.Sprintf("items %d-%d/%d", offset, end-1, n))
}

// IndexNAV returns the index NAV history of a benchmark ticker
func (api *API) IndexNAV(c *fiber.Ctx) error {
	ticker := strings.ToUpper(c.Params("ticker"))
	subLog := log.With().Str("Ticker", ticker).Str("Endpoint", "IndexNAV").Logger()

	limit, offset, err := parseRange(c.Get(fiber.HeaderRange))
	if err != nil {
		return err
	}

	begin, end, err := api.parseDates(c)
	if err != nil {
		return err
	}

	records, err := api.navs.IndexHistory(c.UserContext(), ticker, begin, end)
	if err != nil {
		subLog.Error().Err(err).Msg("could not load index nav history")
		return fiber.ErrInternalServerError
	}
	if len(records) == 0 {
		return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("no index nav for %s", ticker))
	}

	from, to := page(len(records), limit, offset)
	resp := IndexNAVResponse{
		Ticker:  ticker,
		Records: make([]indexPoint, 0, to-from),
	}
	for _, rec := range records[from:to] {
		resp.Records = append(resp.Records, newIndexPoint(rec))
	}

	contentRange(c, from, to, len(records))
	return c.JSON(resp)
}

func newIndexPoint(rec nav.IndexRecord) indexPoint {
	return indexPoint{
		Date:           rec.Date.Format(common.DateFormat),
		DayPayin:       rec.DayPayin,
		DayPayout:      rec.DayPayout,
		AmountInvested: rec.AmountInvested,
		Units:          rec.Units,
		Close:          rec.Close,
		NAV:            rec.NAV,
	}
}
