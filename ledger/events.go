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

package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/penny-vault/pv-nav/common"
	"github.com/penny-vault/pv-nav/data"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CashEvent is money moving into (credit) or out of (debit) the account
type CashEvent struct {
	Date     time.Time
	IsCredit bool
	Amount   decimal.Decimal

	// Narration is the statement text the event came from
	Narration string
}

func (e CashEvent) Validate() error {
	if !e.Amount.IsPositive() {
		return fmt.Errorf("%w: cash event on %s has non-positive amount %s", ErrLedgerIntegrity, e.Date.Format(common.DateFormat), e.Amount)
	}
	return nil
}

func (e CashEvent) MarshalZerologObject(evt *zerolog.Event) {
	evt.Str("Date", e.Date.Format(common.DateFormat)).Bool("IsCredit", e.IsCredit).Str("Amount", e.Amount.String())
}

// TradeEvent is a buy or sell of a whole number of units
type TradeEvent struct {
	Date     time.Time
	Security data.Security
	IsBuy    bool
	Quantity int64
}

func (t TradeEvent) Validate() error {
	if t.Quantity <= 0 {
		return fmt.Errorf("%w: trade of %s on %s has non-positive quantity %d", ErrLedgerIntegrity, t.Security, t.Date.Format(common.DateFormat), t.Quantity)
	}
	if t.Security.Key() == "" {
		return fmt.Errorf("%w: trade on %s has no security identifier", ErrLedgerIntegrity, t.Date.Format(common.DateFormat))
	}
	return nil
}

// Signed is the quantity with sells negative
func (t TradeEvent) Signed() int64 {
	if t.IsBuy {
		return t.Quantity
	}
	return -t.Quantity
}

func (t TradeEvent) MarshalZerologObject(evt *zerolog.Event) {
	side := "sell"
	if t.IsBuy {
		side = "buy"
	}
	evt.Str("Date", t.Date.Format(common.DateFormat)).Object("Security", t.Security).Str("Side", side).Int64("Quantity", t.Quantity)
}

// ParseTradeType accepts "buy" or "sell" in any case
func ParseTradeType(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return true, nil
	case "sell":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownTradeType, s)
	}
}
