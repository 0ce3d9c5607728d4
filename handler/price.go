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
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/penny-vault/pv-nav/common"
	"github.com/penny-vault/pv-nav/data"
	"github.com/rs/zerolog/log"
)

type PriceResponse struct {
	Security  data.Security `json:"security"`
	Requested string        `json:"requested"`
	Date      string        `json:"date"`
	Close     float64       `json:"close"`
}

// Price returns the first close on or after the requested date. The
// identifier may be an ISIN or a ticker.
func (api *API) Price(c *fiber.Ctx) error {
	sec := data.SecurityFromIdentifier(c.Params("identifier"))
	dateStr := c.Params("date")
	subLog := log.With().Object("Security", sec).Str("Date", dateStr).Str("Endpoint", "Price").Logger()

	date, err := time.ParseInLocation(common.DateFormat, dateStr, api.loc)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "date must be YYYY-MM-DD")
	}

	point, err := api.prices.CloseOnOrAfter(c.UserContext(), sec, date)
	switch {
	case errors.Is(err, data.ErrDayClosePriceNotFound), errors.Is(err, data.ErrNoIdentifierMapping):
		subLog.Info().Err(err).Msg("no close price")
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, data.ErrRemoteFetchExhausted), errors.Is(err, data.ErrProviderRequest):
		subLog.Warn().Err(err).Msg("price provider could not serve close")
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	case err != nil:
		subLog.Error().Err(err).Msg("close price lookup failed")
		return fiber.ErrInternalServerError
	}

	return c.JSON(PriceResponse{
		Security:  sec,
		Requested: date.Format(common.DateFormat),
		Date:      point.Date.Format(common.DateFormat),
		Close:     point.Close,
	})
}
