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
)

// dayIndex groups events by calendar day while keeping their input order
// within a day
type dayIndex[E any] struct {
	days  []time.Time
	byDay map[string][]E
}

func newDayIndex[E any](events []E, dateOf func(E) time.Time) dayIndex[E] {
	idx := dayIndex[E]{byDay: make(map[string][]E)}
	for _, e := range events {
		day := common.Day(dateOf(e))
		key := day.Format(common.DateFormat)
		if _, ok := idx.byDay[key]; !ok {
			idx.days = append(idx.days, day)
		}
		idx.byDay[key] = append(idx.byDay[key], e)
	}
	sort.Slice(idx.days, func(i, j int) bool { return idx.days[i].Before(idx.days[j]) })
	return idx
}

func (idx dayIndex[E]) on(date time.Time) []E {
	return idx.byDay[date.Format(common.DateFormat)]
}

func (idx dayIndex[E]) first() (time.Time, bool) {
	if len(idx.days) == 0 {
		return time.Time{}, false
	}
	return idx.days[0], true
}

// CashLedger answers which cash events happened on a given day. It does no
// accumulation; netting is the NAV engine's job.
type CashLedger struct {
	idx   dayIndex[CashEvent]
	count int
}

// NewCashLedger validates every event before indexing; one invalid event
// rejects the ledger
func NewCashLedger(events []CashEvent) (*CashLedger, error) {
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}
	return &CashLedger{
		idx:   newDayIndex(events, func(e CashEvent) time.Time { return e.Date }),
		count: len(events),
	}, nil
}

func (l *CashLedger) EventsOn(date time.Time) []CashEvent {
	return l.idx.on(date)
}

// FirstDay is day zero of the index NAV
func (l *CashLedger) FirstDay() (time.Time, bool) {
	return l.idx.first()
}

func (l *CashLedger) Days() []time.Time {
	return append([]time.Time(nil), l.idx.days...)
}

func (l *CashLedger) Len() int {
	return l.count
}

// TradeLedger is the trade counterpart of CashLedger
type TradeLedger struct {
	idx   dayIndex[TradeEvent]
	count int
}

func NewTradeLedger(trades []TradeEvent) (*TradeLedger, error) {
	for _, t := range trades {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	return &TradeLedger{
		idx:   newDayIndex(trades, func(t TradeEvent) time.Time { return t.Date }),
		count: len(trades),
	}, nil
}

func (l *TradeLedger) EventsOn(date time.Time) []TradeEvent {
	return l.idx.on(date)
}

func (l *TradeLedger) FirstDay() (time.Time, bool) {
	return l.idx.first()
}

func (l *TradeLedger) Days() []time.Time {
	return append([]time.Time(nil), l.idx.days...)
}

func (l *TradeLedger) Len() int {
	return l.count
}
