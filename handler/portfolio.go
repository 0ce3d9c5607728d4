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
	"github.com/gofiber/fiber/v2"
	"github.com/penny-vault/pv-nav/common"
	"github.com/rs/zerolog/log"
)

type portfolioPoint struct {
	Date string  `json:"date"`
	NAV  float64 `json:"nav"`
}

// PortfolioNAV returns the portfolio NAV history. Holdings are not part of
// the response.
func (api *API) PortfolioNAV(c *fiber.Ctx) error {
	limit, offset, err := parseRange(c.Get(fiber.HeaderRange))
	if err != nil {
		return err
	}

	begin, end, err := api.parseDates(c)
	if err != nil {
		return err
	}

	records, err := api.navs.PortfolioHistory(c.UserContext(), begin, end)
	if err != nil {
		log.Error().Err(err).Str("Endpoint", "PortfolioNAV").Msg("could not load portfolio nav history")
		return fiber.ErrInternalServerError
	}

	from, to := page(len(records), limit, offset)
	points := make([]portfolioPoint, 0, to-from)
	for _, rec := range records[from:to] {
		points = append(points, portfolioPoint{
			Date: rec.Date.Format(common.DateFormat),
			NAV:  rec.NAV,
		})
	}

	contentRange(c, from, to, len(records))
	return c.JSON(points)
}
