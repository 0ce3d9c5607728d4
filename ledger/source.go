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
	"context"
	"fmt"
	"time"

	"github.com/penny-vault/pv-nav/data/database"
	"github.com/penny-vault/pv-nav/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

func inLocation(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// LoadStatement reads the imported funds statement in posting order.
// Amounts are read as text so no precision is lost to float conversion.
func LoadStatement(ctx context.Context, loc *time.Location) ([]StatementLine, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "ledger.LoadStatement")
	defer span.End()

	trx, err := database.Trx(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not get database transaction")
		return nil, err
	}

	sql := `SELECT posting_date, particulars, cost_center, voucher_type, coalesce(debit, 0)::text, coalesce(credit, 0)::text
FROM bank_statement ORDER BY posting_date, line_no`
	rows, err := trx.Query(ctx, sql)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query bank_statement failed")
		log.Error().Err(err).Str("Query", sql).Msg("could not query bank statement")
		database.Rollback(ctx, trx)
		return nil, err
	}

	var lines []StatementLine
	for rows.Next() {
		var line StatementLine
		var debit, credit string
		if err := rows.Scan(&line.PostingDate, &line.Particulars, &line.CostCenter, &line.VoucherType, &debit, &credit); err != nil {
			log.Error().Err(err).Msg("could not scan bank statement row")
			rows.Close()
			database.Rollback(ctx, trx)
			return nil, err
		}
		line.PostingDate = inLocation(line.PostingDate, loc)
		if line.Debit, err = decimal.NewFromString(debit); err != nil {
			rows.Close()
			database.Rollback(ctx, trx)
			return nil, fmt.Errorf("%w: debit %q on %s", ErrLedgerIntegrity, debit, line.PostingDate)
		}
		if line.Credit, err = decimal.NewFromString(credit); err != nil {
			rows.Close()
			database.Rollback(ctx, trx)
			return nil, fmt.Errorf("%w: credit %q on %s", ErrLedgerIntegrity, credit, line.PostingDate)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		database.Rollback(ctx, trx)
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		return nil, err
	}
	return lines, nil
}

// LoadCashEvents reads the statement and keeps the classified settlement
// lines
func LoadCashEvents(ctx context.Context, loc *time.Location) ([]CashEvent, error) {
	lines, err := LoadStatement(ctx, loc)
	if err != nil {
		return nil, err
	}

	events, err := CashEventsFromStatement(lines)
	if err != nil {
		log.Error().Err(err).Msg("bank statement failed classification")
		return nil, err
	}

	log.Info().Int("Lines", len(lines)).Int("CashEvents", len(events)).Msg("loaded bank statement")
	return events, nil
}

// LoadTradeEvents reads the trade report in trade order
func LoadTradeEvents(ctx context.Context, loc *time.Location) ([]TradeEvent, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "ledger.LoadTradeEvents")
	defer span.End()

	trx, err := database.Trx(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not get database transaction")
		return nil, err
	}

	sql := "SELECT trade_date, symbol, isin, trade_type, quantity FROM trade_report ORDER BY trade_date, trade_id"
	rows, err := trx.Query(ctx, sql)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query trade_report failed")
		log.Error().Err(err).Str("Query", sql).Msg("could not query trade report")
		database.Rollback(ctx, trx)
		return nil, err
	}

	var trades []TradeEvent
	for rows.Next() {
		var trade TradeEvent
		var side string
		if err := rows.Scan(&trade.Date, &trade.Security.Ticker, &trade.Security.ISIN, &side, &trade.Quantity); err != nil {
			log.Error().Err(err).Msg("could not scan trade report row")
			rows.Close()
			database.Rollback(ctx, trx)
			return nil, err
		}
		trade.Date = inLocation(trade.Date, loc)
		if trade.IsBuy, err = ParseTradeType(side); err != nil {
			rows.Close()
			database.Rollback(ctx, trx)
			return nil, fmt.Errorf("%w: %s", ErrLedgerIntegrity, err)
		}
		if err := trade.Validate(); err != nil {
			rows.Close()
			database.Rollback(ctx, trx)
			return nil, err
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		database.Rollback(ctx, trx)
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Info().Int("Trades", len(trades)).Msg("loaded trade report")
	return trades, nil
}

