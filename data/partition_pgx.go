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

package data

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/penny-vault/pv-nav/data/database"
	"github.com/penny-vault/pv-nav/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PgxPartitionStore keeps partitions in two tables:
//
//	price_partition(identifier, fy, vendor_symbol, coverage_begin, coverage_end, fetched_at)
//	price_partition_close(identifier, fy, event_date, close)
type PgxPartitionStore struct {
	loc *time.Location
}

func NewPgxPartitionStore(loc *time.Location) *PgxPartitionStore {
	return &PgxPartitionStore{loc: loc}
}

func (p *PgxPartitionStore) Exists(ctx context.Context, ref PartitionRef) (bool, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		log.Error().Err(err).Msg("could not get database transaction")
		return false, err
	}

	var count int
	err = trx.QueryRow(ctx, "SELECT count(*) FROM price_partition WHERE identifier=$1 AND fy=$2", ref.Identifier, ref.FY).Scan(&count)
	if err != nil {
		log.Error().Err(err).Str("Partition", ref.String()).Msg("could not query price_partition")
		database.Rollback(ctx, trx)
		return false, err
	}

	if err := trx.Commit(ctx); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *PgxPartitionStore) Load(ctx context.Context, ref PartitionRef) (*Series, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "data.PgxPartitionStore.Load")
	defer span.End()
	span.SetAttributes(attribute.String("Partition", ref.String()))

	subLog := log.With().Str("Partition", ref.String()).Logger()

	trx, err := database.Trx(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not get database transaction")
		return nil, err
	}

	var symbol string
	var coverage Interval
	var fetchedAt time.Time
	err = trx.QueryRow(ctx, "SELECT vendor_symbol, coverage_begin, coverage_end, fetched_at FROM price_partition WHERE identifier=$1 AND fy=$2",
		ref.Identifier, ref.FY).Scan(&symbol, &coverage.Begin, &coverage.End, &fetchedAt)
	if err == pgx.ErrNoRows {
		database.Rollback(ctx, trx)
		return nil, fmt.Errorf("%w: %s", ErrPartitionNotFound, ref)
	} else if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query partition failed")
		subLog.Error().Err(err).Msg("could not query price_partition")
		database.Rollback(ctx, trx)
		return nil, err
	}

	rows, err := trx.Query(ctx, "SELECT event_date, close::text FROM price_partition_close WHERE identifier=$1 AND fy=$2 ORDER BY event_date",
		ref.Identifier, ref.FY)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query partition rows failed")
		subLog.Error().Err(err).Msg("could not query price_partition_close")
		database.Rollback(ctx, trx)
		return nil, err
	}

	var points []PricePoint
	for rows.Next() {
		var date time.Time
		var closeText string
		if err := rows.Scan(&date, &closeText); err != nil {
			subLog.Error().Err(err).Msg("could not scan price row")
			rows.Close()
			database.Rollback(ctx, trx)
			return nil, err
		}
		// numeric is read as text so no driver float conversion rounds it
		closePrice, err := decimal.NewFromString(closeText)
		if err != nil {
			subLog.Error().Err(err).Str("Close", closeText).Time("Date", date).Msg("close is not a number")
			rows.Close()
			database.Rollback(ctx, trx)
			return nil, err
		}
		points = append(points, PricePoint{Date: p.inLocation(date), Close: closePrice.InexactFloat64()})
	}
	if err := rows.Err(); err != nil {
		database.Rollback(ctx, trx)
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		return nil, err
	}

	coverage.Begin = p.inLocation(coverage.Begin)
	coverage.End = p.inLocation(coverage.End)
	series, err := NewSeries(ref, symbol, coverage, points)
	if err != nil {
		return nil, err
	}
	series.FetchedAt = fetchedAt
	return series, nil
}

// Save replaces the partition in one transaction
func (p *PgxPartitionStore) Save(ctx context.Context, series *Series) error {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "data.PgxPartitionStore.Save")
	defer span.End()

	ref := series.Ref()
	span.SetAttributes(attribute.String("Partition", ref.String()))
	subLog := log.With().Str("Partition", ref.String()).Logger()

	trx, err := database.Trx(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not get database transaction")
		return err
	}

	if _, err := trx.Exec(ctx, "DELETE FROM price_partition_close WHERE identifier=$1 AND fy=$2", ref.Identifier, ref.FY); err != nil {
		subLog.Error().Err(err).Msg("could not clear previous partition rows")
		database.Rollback(ctx, trx)
		return err
	}

	rows := make([][]interface{}, 0, series.Len())
	for _, pt := range series.points {
		rows = append(rows, []interface{}{ref.Identifier, ref.FY, pt.Date, pt.Close})
	}

	if _, err := trx.CopyFrom(ctx, pgx.Identifier{"price_partition_close"}, []string{"identifier", "fy", "event_date", "close"}, pgx.CopyFromRows(rows)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "copy partition rows failed")
		subLog.Error().Err(err).Msg("could not copy partition rows")
		database.Rollback(ctx, trx)
		return err
	}

	sql := `INSERT INTO price_partition (identifier, fy, vendor_symbol, coverage_begin, coverage_end, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT ON CONSTRAINT price_partition_pkey
DO UPDATE SET vendor_symbol=EXCLUDED.vendor_symbol, coverage_begin=EXCLUDED.coverage_begin, coverage_end=EXCLUDED.coverage_end, fetched_at=EXCLUDED.fetched_at`
	if _, err := trx.Exec(ctx, sql, ref.Identifier, ref.FY, series.Symbol, series.Coverage.Begin, series.Coverage.End, series.FetchedAt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert partition failed")
		subLog.Error().Err(err).Str("Query", sql).Msg("could not upsert price_partition")
		database.Rollback(ctx, trx)
		return err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Err(err).Msg("could not commit partition")
		database.Rollback(ctx, trx)
		return err
	}

	return nil
}

func (p *PgxPartitionStore) inLocation(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, p.loc)
}
