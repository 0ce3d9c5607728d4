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
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pashagolub/pgxmock"
	"github.com/rs/zerolog/log"
)

// CSVRows turns a fixture file into pgxmock rows. Columns listed in the type
// map are converted ("date", "float64", "int", "bool"); everything else is
// passed through as a string.
type CSVRows struct {
	rows    [][]any
	header  []string
	dateCol int
}

func NewCSVRows(csvFn string, typeMap map[string]string) *CSVRows {
	subLog := log.With().Str("CsvFn", csvFn).Logger()

	rows := &CSVRows{
		dateCol: -1,
		rows:    make([][]any, 0),
	}
	rawData, err := os.ReadFile(csvFn)
	if err != nil {
		subLog.Panic().Err(err).Msg("could not read file")
	}

	lines := strings.Split(string(rawData), "\n")
	if len(lines) < 2 {
		subLog.Panic().Int("NumLines", len(lines)).Msg("input file does not have enough lines, need at least 2 (header + trailing new line)")
	}
	if lines[len(lines)-1] != "" {
		subLog.Panic().Msg("input file is missing a trailing new line")
	}

	rows.header = strings.Split(lines[0], ",")
	for _, ll := range lines[1 : len(lines)-1] {
		parts := strings.Split(ll, ",")
		if len(parts) != len(rows.header) {
			subLog.Panic().Str("Line", ll).Msg("column count does not match header")
		}

		cols := make([]any, len(rows.header))
		for idx, val := range parts {
			cols[idx] = rows.convert(idx, typeMap[rows.header[idx]], val)
		}
		rows.rows = append(rows.rows, cols)
	}

	return rows
}

func (csvRows *CSVRows) convert(idx int, typeConv string, val string) any {
	switch typeConv {
	case "date":
		parsed, err := time.Parse("2006-01-02", val)
		if err != nil {
			log.Panic().Err(err).Str("Val", val).Msg("could not convert val to datetime of format 2006-01-02")
		}
		csvRows.dateCol = idx
		return parsed
	case "float64":
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Panic().Err(err).Str("Val", val).Msg("could not convert val to float64")
		}
		return parsed
	case "int":
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			log.Panic().Err(err).Str("Val", val).Msg("could not convert val to int")
		}
		return parsed
	case "bool":
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			log.Panic().Err(err).Str("Val", val).Msg("could not convert val to bool")
		}
		return parsed
	default:
		return val
	}
}

// Between keeps rows whose date column is within [a, b]
func (csvRows *CSVRows) Between(a time.Time, b time.Time) *CSVRows {
	if len(csvRows.rows) == 0 {
		return csvRows
	}
	if csvRows.dateCol == -1 {
		log.Panic().Time("a", a).Time("b", b).Msg("no date column found")
	}
	newRows := make([][]any, 0, len(csvRows.rows))
	for _, row := range csvRows.rows {
		t := row[csvRows.dateCol].(time.Time)
		if !t.Before(a) && !t.After(b) {
			newRows = append(newRows, row)
		}
	}
	csvRows.rows = newRows
	return csvRows
}

func (csvRows *CSVRows) Len() int {
	return len(csvRows.rows)
}

func (csvRows *CSVRows) Rows() *pgxmock.Rows {
	r := pgxmock.NewRows(csvRows.header)
	for _, row := range csvRows.rows {
		r.AddRow(row...)
	}
	return r
}
