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
	"sort"
	"time"

	"github.com/penny-vault/pv-nav/common"
	"github.com/penny-vault/pv-nav/data"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Position struct {
	Security data.Security `json:"security"`
	Quantity int64         `json:"quantity"`
}

func (p Position) MarshalZerologObject(e *zerolog.Event) {
	e.Object("Security", p.Security).Int64("Quantity", p.Quantity)
}

// Accumulator folds trades into signed per-security quantities.
//
// Snapshot prunes every position at or below zero and the pruning is
// permanent: a security sold down to zero starts from nothing if it is
// bought again, and a short left by an oversell is forgotten entirely.
type Accumulator struct {
	holdings map[string]*Position
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		holdings: make(map[string]*Position),
	}
}

// Seed restores holdings from a persisted snapshot
func (a *Accumulator) Seed(positions []Position) {
	for _, p := range positions {
		pos := p
		a.holdings[p.Security.Key()] = &pos
	}
}

func (a *Accumulator) Apply(trade TradeEvent) error {
	if err := trade.Validate(); err != nil {
		return err
	}

	key := trade.Security.Key()
	pos, ok := a.holdings[key]
	if !ok {
		a.holdings[key] = &Position{Security: trade.Security, Quantity: trade.Signed()}
		return nil
	}

	pos.Quantity += trade.Signed()
	if pos.Security.ISIN == "" {
		pos.Security.ISIN = trade.Security.ISIN
	}
	if pos.Security.Ticker == "" {
		pos.Security.Ticker = trade.Security.Ticker
	}
	return nil
}

// Snapshot prunes non-positive positions from the live holdings and returns
// what remains ordered by security key
func (a *Accumulator) Snapshot(date time.Time) []Position {
	positions := make([]Position, 0, len(a.holdings))
	for key, pos := range a.holdings {
		if pos.Quantity <= 0 {
			log.Debug().Str("Date", date.Format(common.DateFormat)).Object("Position", *pos).Msg("pruning closed position")
			delete(a.holdings, key)
			continue
		}
		positions = append(positions, *pos)
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Security.Key() < positions[j].Security.Key()
	})
	return positions
}

// Quantity is the live, possibly unpruned, quantity of sec
func (a *Accumulator) Quantity(sec data.Security) (int64, bool) {
	pos, ok := a.holdings[sec.Key()]
	if !ok {
		return 0, false
	}
	return pos.Quantity, true
}
