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
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/penny-vault/pv-nav/data/database"
	"github.com/penny-vault/pv-nav/ledger"
	"github.com/penny-vault/pv-nav/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// PgxStore persists NAV histories. Each record is written in its own
// transaction so a failed run keeps every day before the failure.
//
//	index_nav(ticker, event_date, day_payin, day_payout, amount_invested, units, close, nav)
//	portfolio_nav(event_date, nav)
//	portfolio_holding(event_date, isin, ticker, quantity)
type PgxStore struct {
	loc *time.Location
}

func NewPgxStore(loc *time.Location) *PgxStore {
	return &PgxStore{loc: loc}
}

func (s *PgxStore) inLocation(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

func (s *PgxStore) AppendIndex(ctx context.Context, rec IndexRecord) error {
	trx, err := database.Trx(ctx)
	if err != nil {
		return err
	}

	sql := `INSERT INTO index_nav (ticker, event_date, day_payin, day_payout, amount_invested, units, close, nav)
VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7, $8)`
	_, err = trx.Exec(ctx, sql, rec.Ticker, rec.Date, rec.DayPayin.String(), rec.DayPayout.String(),
		rec.AmountInvested.String(), rec.Units, rec.Close, rec.NAV)
	if err != nil {
		log.Error().Err(err).Object("Record", rec).Msg("could not insert index nav")
		database.Rollback(ctx, trx)
		return err
	}

	return trx.Commit(ctx)
}

func (s *PgxStore) AppendPortfolio(ctx context.Context, rec PortfolioRecord) error {
	trx, err := database.Trx(ctx)
	if err != nil {
		return err
	}

	if _, err := trx.Exec(ctx, "INSERT INTO portfolio_nav (event_date, nav) VALUES ($1, $2)", rec.Date, rec.NAV); err != nil {
		log.Error().Err(err).Object("Record", rec).Msg("could not insert portfolio nav")
		database.Rollback(ctx, trx)
		return err
	}

	rows := make([][]interface{}, 0, len(rec.Holdings))
	for _, pos := range rec.Holdings {
		rows = append(rows, []interface{}{rec.Date, pos.Security.ISIN, pos.Security.Ticker, pos.Quantity})
	}
	if _, err := trx.CopyFrom(ctx, pgx.Identifier{"portfolio_holding"}, []string{"event_date", "isin", "ticker", "quantity"}, pgx.CopyFromRows(rows)); err != nil {
		log.Error().Err(err).Object("Record", rec).Msg("could not copy portfolio holdings")
		database.Rollback(ctx, trx)
		return err
	}

	return trx.Commit(ctx)
}

// ResetIndex removes the history of ticker ahead of a full replay
func (s *PgxStore) ResetIndex(ctx context.Context, ticker string) error {
	trx, err := database.Trx(ctx)
	if err != nil {
		return err
	}
	if _, err := trx.Exec(ctx, "DELETE FROM index_nav WHERE ticker=$1", ticker); err != nil {
		database.Rollback(ctx, trx)
		return err
	}
	return trx.Commit(ctx)
}

// ResetPortfolio removes the portfolio history ahead of a full replay
func (s *PgxStore) ResetPortfolio(ctx context.Context) error {
	trx, err := database.Trx(ctx)
	if err != nil {
		return err
	}
	if _, err := trx.Exec(ctx, "DELETE FROM portfolio_holding"); err != nil {
		database.Rollback(ctx, trx)
		return err
	}
	if _, err := trx.Exec(ctx, "DELETE FROM portfolio_nav"); err != nil {
		database.Rollback(ctx, trx)
		return err
	}
	return trx.Commit(ctx)
}

const indexColumns = "event_date, ticker, day_payin::text, day_payout::text, amount_invested::text, units, close, nav"

func (s *PgxStore) scanIndex(rows pgx.Rows) (IndexRecord, error) {
	var rec IndexRecord
	var payin, payout, invested string
	if err := rows.Scan(&rec.Date, &rec.Ticker, &payin, &payout, &invested, &rec.Units, &rec.Close, &rec.NAV); err != nil {
		return rec, err
	}
	rec.Date = s.inLocation(rec.Date)

	var err error
	if rec.DayPayin, err = decimal.NewFromString(payin); err != nil {
		return rec, err
	}
	if rec.DayPayout, err = decimal.NewFromString(payout); err != nil {
		return rec, err
	}
	rec.AmountInvested, err = decimal.NewFromString(invested)
	return rec, err
}

func (s *PgxStore) queryIndex(ctx context.Context, sql string, args ...interface{}) ([]IndexRecord, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "nav.PgxStore.queryIndex")
	defer span.End()

	trx, err := database.Trx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := trx.Query(ctx, sql, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query index_nav failed")
		log.Error().Err(err).Str("Query", sql).Msg("could not query index nav")
		database.Rollback(ctx, trx)
		return nil, err
	}

	var records []IndexRecord
	for rows.Next() {
		rec, err := s.scanIndex(rows)
		if err != nil {
			log.Error().Err(err).Str("Query", sql).Msg("could not scan index nav")
			rows.Close()
			database.Rollback(ctx, trx)
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		database.Rollback(ctx, trx)
		return nil, err
	}

	return records, trx.Commit(ctx)
}

// LastIndex is the record a resumed run continues from
func (s *PgxStore) LastIndex(ctx context.Context, ticker string) (IndexRecord, bool, error) {
	records, err := s.queryIndex(ctx, "SELECT "+indexColumns+" FROM index_nav WHERE ticker=$1 ORDER BY event_date DESC LIMIT 1", ticker)
	if err != nil || len(records) == 0 {
		return IndexRecord{}, false, err
	}
	return records[0], true, nil
}

func (s *PgxStore) IndexHistory(ctx context.Context, ticker string, begin, end time.Time) ([]IndexRecord, error) {
	return s.queryIndex(ctx, "SELECT "+indexColumns+" FROM index_nav WHERE ticker=$1 AND event_date BETWEEN $2 AND $3 ORDER BY event_date",
		ticker, begin, end)
}

// PortfolioHistory returns records without holdings; use LastPortfolio for
// the holdings of the latest day
func (s *PgxStore) PortfolioHistory(ctx context.Context, begin, end time.Time) ([]PortfolioRecord, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		return nil, err
	}

	sql := "SELECT event_date, nav FROM portfolio_nav WHERE event_date BETWEEN $1 AND $2 ORDER BY event_date"
	rows, err := trx.Query(ctx, sql, begin, end)
	if err != nil {
		log.Error().Err(err).Str("Query", sql).Msg("could not query portfolio nav")
		database.Rollback(ctx, trx)
		return nil, err
	}

	var records []PortfolioRecord
	for rows.Next() {
		var rec PortfolioRecord
		if err := rows.Scan(&rec.Date, &rec.NAV); err != nil {
			rows.Close()
			database.Rollback(ctx, trx)
			return nil, err
		}
		rec.Date = s.inLocation(rec.Date)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		database.Rollback(ctx, trx)
		return nil, err
	}

	return records, trx.Commit(ctx)
}

func (s *PgxStore) LastPortfolio(ctx context.Context) (PortfolioRecord, bool, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		return PortfolioRecord{}, false, err
	}

	var rec PortfolioRecord
	err = trx.QueryRow(ctx, "SELECT event_date, nav FROM portfolio_nav ORDER BY event_date DESC LIMIT 1").Scan(&rec.Date, &rec.NAV)
	if err == pgx.ErrNoRows {
		return PortfolioRecord{}, false, trx.Commit(ctx)
	} else if err != nil {
		log.Error().Err(err).Msg("could not query last portfolio nav")
		database.Rollback(ctx, trx)
		return PortfolioRecord{}, false, err
	}

	rows, err := trx.Query(ctx, "SELECT isin, ticker, quantity FROM portfolio_holding WHERE event_date=$1 ORDER BY isin", rec.Date)
	if err != nil {
		log.Error().Err(err).Msg("could not query portfolio holdings")
		database.Rollback(ctx, trx)
		return PortfolioRecord{}, false, err
	}
	for rows.Next() {
		var pos ledger.Position
		if err := rows.Scan(&pos.Security.ISIN, &pos.Security.Ticker, &pos.Quantity); err != nil {
			rows.Close()
			database.Rollback(ctx, trx)
			return PortfolioRecord{}, false, err
		}
		rec.Holdings = append(rec.Holdings, pos)
	}
	if err := rows.Err(); err != nil {
		database.Rollback(ctx, trx)
		return PortfolioRecord{}, false, err
	}

	rec.Date = s.inLocation(rec.Date)
	return rec, true, trx.Commit(ctx)
}
