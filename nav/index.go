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
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/penny-vault/pv-nav/common"
	"github.com/penny-vault/pv-nav/data"
	"github.com/penny-vault/pv-nav/ledger"
	"github.com/penny-vault/pv-nav/observability/opentelemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type IndexSink interface {
	AppendIndex(ctx context.Context, rec IndexRecord) error
}

// IndexEngine replays the cash ledger as if every net deposit bought units
// of a benchmark at that day's close, and every net withdrawal sold them.
//
// Pay-in and pay-out are netted per day, so at most one of them is non-zero
// in any record.
type IndexEngine struct {
	benchmark data.Security
	cash      *ledger.CashLedger
	prices    PriceSource
	sink      IndexSink
	clock     Clock

	state    State
	cursor   time.Time
	payin    decimal.Decimal
	payout   decimal.Decimal
	invested decimal.Decimal
	units    float64
	last     *IndexRecord
	emitted  int

	runID  string
	logger zerolog.Logger
}

func NewIndexEngine(benchmark data.Security, cash *ledger.CashLedger, prices PriceSource, sink IndexSink, clock Clock) *IndexEngine {
	runID := uuid.New().String()
	return &IndexEngine{
		benchmark: benchmark,
		cash:      cash,
		prices:    prices,
		sink:      sink,
		clock:     clock,
		state:     StateUninitialized,
		runID:     runID,
		logger:    log.With().Str("RunID", runID).Str("Engine", "index").Str("Ticker", benchmark.Ticker).Logger(),
	}
}

func (e *IndexEngine) State() State {
	return e.state
}

// Emitted is the number of records written by this run
func (e *IndexEngine) Emitted() int {
	return e.emitted
}

// Last is the most recent record, emitted or resumed from
func (e *IndexEngine) Last() (IndexRecord, bool) {
	if e.last == nil {
		return IndexRecord{}, false
	}
	return *e.last, true
}

// Resume continues a series from its last persisted record instead of day
// zero. Ledger events on or before that record's date are not re-applied.
func (e *IndexEngine) Resume(last IndexRecord) error {
	if e.state != StateUninitialized {
		return fmt.Errorf("%w: resume in state %s", ErrEngineState, e.state)
	}
	if last.Ticker != e.benchmark.Ticker {
		return fmt.Errorf("%w: record is for %s, engine for %s", ErrResumeMismatch, last.Ticker, e.benchmark.Ticker)
	}

	rec := last
	e.cursor = common.Day(last.Date)
	e.invested = last.AmountInvested
	e.units = last.Units
	e.last = &rec
	e.state = StateAdvancing
	e.logger.Info().Object("Record", last).Msg("resuming index nav")
	return nil
}

// Run processes every day from day zero (or the resume point) through
// yesterday. A failure leaves already emitted records in place and moves
// the engine to FAILED.
func (e *IndexEngine) Run(ctx context.Context) error {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "nav.IndexEngine.Run")
	defer span.End()
	span.SetAttributes(attribute.String("Ticker", e.benchmark.Ticker), attribute.String("RunID", e.runID))

	err := e.run(ctx)
	if err != nil {
		e.state = StateFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, "index nav failed")
		e.logger.Error().Err(err).Time("Cursor", e.cursor).Int("Emitted", e.emitted).Msg("index nav failed")
		return err
	}

	e.state = StateDone
	span.SetAttributes(attribute.Int("Emitted", e.emitted))
	e.logger.Info().Int("Emitted", e.emitted).Msg("index nav complete")
	return nil
}

func (e *IndexEngine) run(ctx context.Context) error {
	lastDay := e.clock.LastDay()

	switch e.state {
	case StateUninitialized:
		first, ok := e.cash.FirstDay()
		if !ok {
			return ErrNoEvents
		}
		if first.After(lastDay) {
			e.logger.Info().Time("DayZero", first).Msg("day zero has no final close yet")
			return nil
		}
		e.state = StateDayZero
		if err := e.dayZero(ctx, first); err != nil {
			return err
		}
		e.state = StateAdvancing
	case StateAdvancing:
	default:
		return fmt.Errorf("%w: run in state %s", ErrEngineState, e.state)
	}

	for day := common.NextDay(e.cursor); !day.After(lastDay); day = common.NextDay(day) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.advance(ctx, day); err != nil {
			return err
		}
	}
	return nil
}

func (e *IndexEngine) fold(events []ledger.CashEvent) {
	for _, evt := range events {
		if evt.IsCredit {
			e.payin = e.payin.Add(evt.Amount)
		} else {
			e.payout = e.payout.Add(evt.Amount)
		}
	}
}

func (e *IndexEngine) dayZero(ctx context.Context, day time.Time) error {
	e.fold(e.cash.EventsOn(day))

	price, err := e.prices.Close(ctx, e.benchmark, day)
	if errors.Is(err, data.ErrDayClosePriceNotFound) {
		return fmt.Errorf("%w: %s: %s", ErrDayZeroNotTradingDay, day.Format(common.DateFormat), err)
	} else if err != nil {
		return err
	}

	return e.settle(ctx, day, price)
}

func (e *IndexEngine) advance(ctx context.Context, day time.Time) error {
	events := e.cash.EventsOn(day)
	e.fold(events)

	price, err := e.prices.Close(ctx, e.benchmark, day)
	if errors.Is(err, data.ErrDayClosePriceNotFound) {
		if len(events) == 0 {
			e.cursor = day
			return nil
		}
		return fmt.Errorf("%w: %d cash events on %s: %s", ErrMarketClosedWithActivity, len(events), day.Format(common.DateFormat), err)
	} else if err != nil {
		return err
	}

	return e.settle(ctx, day, price)
}

// settle nets the day's cash flow, converts it to units at price and emits
// the day's record
func (e *IndexEngine) settle(ctx context.Context, day time.Time, price float64) error {
	net := e.payin.Sub(e.payout)
	switch net.Sign() {
	case 1:
		e.payin = net
		e.payout = decimal.Zero
		e.invested = e.invested.Add(net)
	case -1:
		e.payin = decimal.Zero
		e.payout = net.Neg()
		e.invested = e.invested.Sub(e.payout)
	default:
		e.payin = decimal.Zero
		e.payout = decimal.Zero
	}

	payin, _ := e.payin.Float64()
	payout, _ := e.payout.Float64()
	e.units += payin / price
	e.units -= payout / price

	rec := IndexRecord{
		Date:           day,
		Ticker:         e.benchmark.Ticker,
		DayPayin:       e.payin,
		DayPayout:      e.payout,
		AmountInvested: e.invested,
		Units:          e.units,
		Close:          price,
		NAV:            e.units * price,
	}

	if err := e.sink.AppendIndex(ctx, rec); err != nil {
		return err
	}
	e.logger.Debug().Object("Record", rec).Msg("emitted index nav")

	e.last = &rec
	e.emitted++
	e.cursor = day
	e.payin = decimal.Zero
	e.payout = decimal.Zero
	return nil
}
