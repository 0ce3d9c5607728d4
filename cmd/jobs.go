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

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/penny-vault/pv-nav/ledger"
	"github.com/penny-vault/pv-nav/nav"
	"github.com/rs/zerolog/log"
)

// navJob runs the NAV engines against the configured ledger tables
type navJob struct {
	loc    *time.Location
	prices nav.PriceSource
	store  *nav.PgxStore

	// replay discards the stored history and starts from day zero
	replay bool

	// dryRun keeps records in memory instead of writing them
	dryRun bool
	memory *nav.MemorySink
}

func newNavJob(loc *time.Location, prices nav.PriceSource, replay, dryRun bool) *navJob {
	return &navJob{
		loc:    loc,
		prices: prices,
		store:  nav.NewPgxStore(loc),
		replay: replay,
		dryRun: dryRun,
		memory: &nav.MemorySink{},
	}
}

func (j *navJob) index(ctx context.Context) (*nav.IndexEngine, error) {
	events, err := ledger.LoadCashEvents(ctx, j.loc)
	if err != nil {
		return nil, err
	}
	cash, err := ledger.NewCashLedger(events)
	if err != nil {
		return nil, err
	}
	clock, err := engineClock(j.loc)
	if err != nil {
		return nil, err
	}

	benchmark := benchmarkSecurity()
	if j.dryRun {
		engine := nav.NewIndexEngine(benchmark, cash, j.prices, j.memory, clock)
		return engine, engine.Run(ctx)
	}

	engine := nav.NewIndexEngine(benchmark, cash, j.prices, j.store, clock)
	if j.replay {
		if err := j.store.ResetIndex(ctx, benchmark.Ticker); err != nil {
			return engine, err
		}
	} else {
		last, ok, err := j.store.LastIndex(ctx, benchmark.Ticker)
		if err != nil {
			return engine, err
		}
		if ok {
			if err := engine.Resume(last); err != nil {
				return engine, err
			}
		}
	}
	return engine, engine.Run(ctx)
}

func (j *navJob) portfolio(ctx context.Context) (*nav.PortfolioEngine, error) {
	trades, err := ledger.LoadTradeEvents(ctx, j.loc)
	if err != nil {
		return nil, err
	}
	tradeLedger, err := ledger.NewTradeLedger(trades)
	if err != nil {
		return nil, err
	}
	clock, err := engineClock(j.loc)
	if err != nil {
		return nil, err
	}

	if j.dryRun {
		engine := nav.NewPortfolioEngine(tradeLedger, j.prices, j.memory, clock)
		return engine, engine.Run(ctx)
	}

	engine := nav.NewPortfolioEngine(tradeLedger, j.prices, j.store, clock)
	if j.replay {
		if err := j.store.ResetPortfolio(ctx); err != nil {
			return engine, err
		}
	} else {
		last, ok, err := j.store.LastPortfolio(ctx)
		if err != nil {
			return engine, err
		}
		if ok {
			if err := engine.Resume(last); err != nil {
				return engine, err
			}
		}
	}
	return engine, engine.Run(ctx)
}

// update resumes both series. A failure in one does not stop the other.
func (j *navJob) update(ctx context.Context) error {
	var failed []string

	if engine, err := j.index(ctx); err != nil {
		log.Error().Err(err).Msg("index nav update failed")
		failed = append(failed, "index")
	} else {
		log.Info().Int("Emitted", engine.Emitted()).Msg("index nav updated")
	}

	if engine, err := j.portfolio(ctx); err != nil {
		log.Error().Err(err).Msg("portfolio nav update failed")
		failed = append(failed, "portfolio")
	} else {
		log.Info().Int("Emitted", engine.Emitted()).Msg("portfolio nav updated")
	}

	if len(failed) > 0 {
		return fmt.Errorf("nav update failed for %v", failed)
	}
	return nil
}

func (j *navJob) printIndex() {
	for _, rec := range j.memory.Index {
		fmt.Printf("%s\t%s\t%s\t%s\t%.6f\t%.2f\t%.2f\n", rec.Date.Format("2006-01-02"),
			rec.DayPayin.StringFixed(2), rec.DayPayout.StringFixed(2), rec.AmountInvested.StringFixed(2),
			rec.Units, rec.Close, rec.NAV)
	}
	fmt.Printf("Digest: %s\n", nav.IndexDigest(j.memory.Index))
}

func (j *navJob) printPortfolio() {
	for _, rec := range j.memory.Portfolio {
		fmt.Printf("%s\t%.2f\t%d holdings\n", rec.Date.Format("2006-01-02"), rec.NAV, len(rec.Holdings))
	}
	fmt.Printf("Digest: %s\n", nav.PortfolioDigest(j.memory.Portfolio))
}
