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
	"context"
	"regexp"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/penny-vault/pv-nav/common"
	"github.com/penny-vault/pv-nav/data"
	"github.com/penny-vault/pv-nav/nav"
	"github.com/rs/zerolog/log"
)

// NavReader is the read side of the NAV record store
type NavReader interface {
	IndexHistory(ctx context.Context, ticker string, begin, end time.Time) ([]nav.IndexRecord, error)
	PortfolioHistory(ctx context.Context, begin, end time.Time) ([]nav.PortfolioRecord, error)
}

type PriceReader interface {
	CloseOnOrAfter(ctx context.Context, sec data.Security, date time.Time) (data.PricePoint, error)
}

// API serves NAV histories and close prices. It never runs an engine.
type API struct {
	navs   NavReader
	prices PriceReader
	loc    *time.Location
	now    func() time.Time
}

func New(navs NavReader, prices PriceReader, loc *time.Location) *API {
	return &API{
		navs:   navs,
		prices: prices,
		loc:    loc,
		now:    time.Now,
	}
}

type PingResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

func (api *API) Ping(c *fiber.Ctx) error {
	return c.JSON(PingResponse{
		Status:  "success",
		Message: "API is alive",
		Time:    api.now().In(api.loc).Format(time.RFC3339),
	})
}

var rangePattern = regexp.MustCompile(`((\w+)=)?(\d+)-(\d+)`)

// parseRange reads a `Range: items=begin-end` header into a limit and
// offset. No header means every item.
func parseRange(r string) (int, int, error) {
	if r == "" {
		return -1, 0, nil
	}

	res := rangePattern.FindStringSubmatch(r)
	if res == nil {
		return 0, 0, fiber.ErrRequestedRangeNotSatisfiable
	}

	if res[2] != "" && res[2] != "items" {
		return 0, 0, fiber.ErrRequestedRangeNotSatisfiable
	}

	begin, err := strconv.ParseInt(res[3], 10, 32)
	if err != nil {
		log.Error().Err(err).Msg("could not parse range begin")
		return 0, 0, fiber.ErrRequestedRangeNotSatisfiable
	}

	end, err := strconv.ParseInt(res[4], 10, 32)
	if err != nil {
		log.Error().Err(err).Msg("could not parse range end")
		return 0, 0, fiber.ErrRequestedRangeNotSatisfiable
	}

	if end < begin {
		log.Error().Int64("Begin", begin).Int64("End", end).Msg("range error: end < begin")
		return 0, 0, fiber.ErrRequestedRangeNotSatisfiable
	}

	return int(end - begin + 1), int(begin), nil
}

// page applies a limit and offset from parseRange to n items
func page(n, limit, offset int) (int, int) {
	if offset > n {
		offset = n
	}
	end := n
	if limit >= 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}

// parseDates reads the startDate and endDate query parameters as calendar
// days in the market timezone. endDate defaults to today.
func (api *API) parseDates(c *fiber.Ctx) (time.Time, time.Time, error) {
	startStr := c.Query("startDate", "1900-01-01")
	endStr := c.Query("endDate", "now")

	begin, err := time.ParseInLocation(common.DateFormat, startStr, api.loc)
	if err != nil {
		log.Warn().Err(err).Str("StartDate", startStr).Msg("cannot parse start date query parameter")
		return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "startDate must be YYYY-MM-DD")
	}

	var end time.Time
	if endStr == "now" {
		end = common.Day(api.now().In(api.loc))
	} else {
		end, err = time.ParseInLocation(common.DateFormat, endStr, api.loc)
		if err != nil {
			log.Warn().Err(err).Str("EndDate", endStr).Msg("cannot parse end date query parameter")
			return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "endDate must be YYYY-MM-DD")
		}
	}

	if end.Before(begin) {
		return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "endDate is before startDate")
	}
	return begin, end, nil
}
