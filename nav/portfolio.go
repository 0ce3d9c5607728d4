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
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type PortfolioSink interface {
	AppendPortfolio(ctx context.Context, rec PortfolioRecord) error
}

// PortfolioEngine values the holdings built from the trade ledger at each
// day's closes. A day on which any held security has no close is treated
// as a non-trading day.
type PortfolioEngine struct {
	trades *ledger.TradeLedger
	prices PriceSource
	sink   PortfolioSink
	clock  Clock

	state   State
	cursor  time.Time
	acc     *ledger.Accumulator
	last    *PortfolioRecord
	emitted int

	runID  string
	logger zerolog.Logger
}

func NewPortfolioEngine(trades *ledger.TradeLedger, prices PriceSource, sink PortfolioSink, clock Clock) *PortfolioEngine {
	runID := uuid.New().String()
	return &PortfolioEngine{
		trades: trades,
		prices: prices,
		sink:   sink,
		clock:  clock,
		state:  StateUninitialized,
		acc:    ledger.NewAccumulator(),
		runID:  runID,
		logger: log.With().Str("RunID", runID).Str("Engine", "portfolio").Logger(),
	}
}

func (e *PortfolioEngine) State() State {
	return e.state
}

func (e *PortfolioEngine) Emitted() int {
	return e.emitted
}

func (e *PortfolioEngine) Last() (PortfolioRecord, bool) {
	if e.last == nil {
		return PortfolioRecord{}, false
	}
	return *e.last, true
}

// Resume seeds the holdings from the last persisted record
func (e *PortfolioEngine) Resume(last PortfolioRecord) error {
	if e.state != StateUninitialized {
		return fmt.Errorf("%w: resume in state %s", ErrEngineState, e.state)
	}
	for _, pos := range last.Holdings {
		if pos.Quantity <= 0 {
			return fmt.Errorf("%w: holding %s has quantity %d", ErrResumeMismatch, pos.Security, pos.Quantity)
		}
	}

	rec := last
	e.acc.Seed(last.Holdings)
	e.cursor = common.Day(last.Date)
	e.last = &rec
	e.state = StateAdvancing
	e.logger.Info().Object("Record", last).Msg("resuming portfolio nav")
	return nil
}

func (e *PortfolioEngine) Run(ctx context.Context) error {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "nav.PortfolioEngine.Run")
	defer span.End()
	span.SetAttributes(attribute.String("RunID", e.runID))

	err := e.run(ctx)
	if err != nil {
		e.state = StateFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, "portfolio nav failed")
		e.logger.Error().Err(err).Time("Cursor", e.cursor).Int("Emitted", e.emitted).Msg("portfolio nav failed")
		return err
	}

	e.state = StateDone
	span.SetAttributes(attribute.Int("Emitted", e.emitted))
	e.logger.Info().Int("Emitted", e.emitted).Msg("portfolio nav complete")
	return nil
}

func (e *PortfolioEngine) run(ctx context.Context) error {
	lastDay := e.clock.LastDay()

	switch e.state {
	case StateUninitialized:
		first, ok := e.trades.FirstDay()
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

func (e *PortfolioEngine) apply(trades []ledger.TradeEvent) error {
	for _, trade := range trades {
		if err := e.acc.Apply(trade); err != nil {
			return err
		}
	}
	return nil
}

func (e *PortfolioEngine) dayZero(ctx context.Context, day time.Time) error {
	if err := e.apply(e.trades.EventsOn(day)); err != nil {
		return err
	}

	holdings := e.acc.Snapshot(day)
	value, err := e.value(ctx, day, holdings)
	if errors.Is(err, data.ErrDayClosePriceNotFound) {
		return fmt.Errorf("%w: %s: %s", ErrDayZeroNotTradingDay, day.Format(common.DateFormat), err)
	} else if err != nil {
		return err
	}

	return e.emit(ctx, day, value, holdings)
}

func (e *PortfolioEngine) advance(ctx context.Context, day time.Time) error {
	trades := e.trades.EventsOn(day)
	if err := e.apply(trades); err != nil {
		return err
	}

	holdings := e.acc.Snapshot(day)
	if len(holdings) == 0 {
		e.cursor = day
		return nil
	}

	value, err := e.value(ctx, day, holdings)
	if errors.Is(err, data.ErrDayClosePriceNotFound) {
		if len(trades) == 0 {
			e.cursor = day
			return nil
		}
		return fmt.Errorf("%w: %d trades on %s: %s", ErrMarketClosedWithActivity, len(trades), day.Format(common.DateFormat), err)
	} else if err != nil {
		return err
	}

	return e.emit(ctx, day, value, holdings)
}

// value sums quantity times close in snapshot order so replays produce
// identical floating point results
func (e *PortfolioEngine) value(ctx context.Context, day time.Time, holdings []ledger.Position) (float64, error) {
	var total float64
	for _, pos := range holdings {
		price, err := e.prices.Close(ctx, pos.Security, day)
		if err != nil {
			return 0, err
		}
		total += float64(pos.Quantity) * price
	}
	return total, nil
}

func (e *PortfolioEngine) emit(ctx context.Context, day time.Time, value float64, holdings []ledger.Position) error {
	rec := PortfolioRecord{
		Date:     day,
		NAV:      value,
		Holdings: holdings,
	}

	if err := e.sink.AppendPortfolio(ctx, rec); err != nil {
		return err
	}
	e.logger.Debug().Object("Record", rec).Msg("emitted portfolio nav")

	e.last = &rec
	e.emitted++
	e.cursor = day
	return nil
}
