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

package nav

import (
	"context"
	"fmt"
	"time"

	"github.com/penny-vault/pv-nav/common"
	"github.com/penny-vault/pv-nav/data"
	"github.com/penny-vault/pv-nav/ledger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// State of an engine run. Engines only move forward through the states;
// Done and Failed are terminal.
type State int

const (
	StateUninitialized State = iota
	StateDayZero
	StateAdvancing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateDayZero:
		return "DAY_ZERO"
	case StateAdvancing:
		return "ADVANCING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// PriceSource is satisfied by *data.PriceStore
type PriceSource interface {
	Close(ctx context.Context, sec data.Security, date time.Time) (float64, error)
}

// IndexRecord is one day of the index NAV: the account's net cash flow
// converted to units of the benchmark at that day's close
type IndexRecord struct {
	Date           time.Time       `json:"date"`
	Ticker         string          `json:"ticker"`
	DayPayin       decimal.Decimal `json:"dayPayin"`
	DayPayout      decimal.Decimal `json:"dayPayout"`
	AmountInvested decimal.Decimal `json:"amountInvested"`
	Units          float64         `json:"units"`
	Close          float64         `json:"close"`
	NAV            float64         `json:"nav"`
}

func (r IndexRecord) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Date", r.Date.Format(common.DateFormat)).
		Str("Ticker", r.Ticker).
		Str("DayPayin", r.DayPayin.String()).
		Str("DayPayout", r.DayPayout.String()).
		Str("AmountInvested", r.AmountInvested.String()).
		Float64("Units", r.Units).
		Float64("Close", r.Close).
		Float64("NAV", r.NAV)
}

// PortfolioRecord is one day of the portfolio NAV with the holdings it was
// valued from
type PortfolioRecord struct {
	Date     time.Time         `json:"date"`
	NAV      float64           `json:"nav"`
	Holdings []ledger.Position `json:"holdings"`
}

func (r PortfolioRecord) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Date", r.Date.Format(common.DateFormat)).Float64("NAV", r.NAV).Int("Positions", len(r.Holdings))
}

// Clock decides the last day an engine may process
type Clock struct {
	Location *time.Location
	Now      func() time.Time

	// Through caps the run; the zero value means yesterday
	Through time.Time
}

// LastDay is yesterday in the market timezone, or Through if it is earlier.
// Today is never processed because its close is not final.
func (c Clock) LastDay() time.Time {
	loc := c.Location
	if loc == nil {
		loc = common.GetTimezone()
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	last := common.Yesterday(now().In(loc))
	if !c.Through.IsZero() {
		through := common.Day(c.Through.In(loc))
		if through.Before(last) {
			last = through
		}
	}
	return last
}
