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

package pgxmockhelper

import (
	"time"

	"github.com/pashagolub/pgxmock"
)

// MockPartitionLoad expects the two queries issued by
// data.PgxPartitionStore.Load for a partition stored in fn
func MockPartitionLoad(db pgxmock.PgxConnIface, fn string, symbol string, coverageBegin, coverageEnd time.Time) {
	db.ExpectBegin()
	db.ExpectQuery("SELECT vendor_symbol, coverage_begin, coverage_end, fetched_at FROM price_partition").WillReturnRows(
		pgxmock.NewRows([]string{"vendor_symbol", "coverage_begin", "coverage_end", "fetched_at"}).
			AddRow(symbol, coverageBegin, coverageEnd, coverageEnd.AddDate(0, 0, 1)))
	db.ExpectQuery("SELECT event_date, close::text FROM price_partition_close").WillReturnRows(
		NewCSVRows(fn, map[string]string{
			"event_date": "date",
		}).Between(coverageBegin, coverageEnd).Rows())
	db.ExpectCommit()
}

// MockCashEvents expects ledger.LoadCashEvents reading the statement in fn
func MockCashEvents(db pgxmock.PgxConnIface, fn string) {
	db.ExpectBegin()
	db.ExpectQuery("SELECT posting_date, particulars, cost_center, voucher_type").WillReturnRows(
		NewCSVRows(fn, map[string]string{
			"posting_date": "date",
		}).Rows())
	db.ExpectCommit()
}

// MockTradeEvents expects ledger.LoadTradeEvents reading the trade report in fn
func MockTradeEvents(db pgxmock.PgxConnIface, fn string) {
	db.ExpectBegin()
	db.ExpectQuery("SELECT trade_date, symbol, isin, trade_type, quantity FROM trade_report").WillReturnRows(
		NewCSVRows(fn, map[string]string{
			"trade_date": "date",
			"quantity":   "int",
		}).Rows())
	db.ExpectCommit()
}
