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
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/penny-vault/pv-nav/common"
	"github.com/penny-vault/pv-nav/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// partitionMeta is written after the price file; its presence marks the
// partition as complete
type partitionMeta struct {
	Identifier    string    `json:"identifier"`
	FY            int       `json:"fy"`
	Symbol        string    `json:"symbol"`
	CoverageBegin string    `json:"coverage_begin"`
	CoverageEnd   string    `json:"coverage_end"`
	Rows          int       `json:"rows"`
	Compressed    bool      `json:"compressed"`
	FetchedAt     time.Time `json:"fetched_at"`
}

func newPartitionMeta(series *Series, compressed bool) partitionMeta {
	return partitionMeta{
		Identifier:    series.Identifier,
		FY:            series.FY,
		Symbol:        series.Symbol,
		CoverageBegin: dayKey(series.Coverage.Begin),
		CoverageEnd:   dayKey(series.Coverage.End),
		Rows:          series.Len(),
		Compressed:    compressed,
		FetchedAt:     series.FetchedAt,
	}
}

// series rebuilds a stored partition from its metadata and rows
func (meta partitionMeta) series(ref PartitionRef, points []PricePoint, loc *time.Location) (*Series, error) {
	if meta.Rows != len(points) {
		return nil, fmt.Errorf("partition %s: metadata lists %d rows, found %d", ref, meta.Rows, len(points))
	}

	var err error
	coverage := Interval{}
	if coverage.Begin, err = common.ParseDate(meta.CoverageBegin, loc); err != nil {
		return nil, err
	}
	if coverage.End, err = common.ParseDate(meta.CoverageEnd, loc); err != nil {
		return nil, err
	}

	series, err := NewSeries(ref, meta.Symbol, coverage, points)
	if err != nil {
		return nil, err
	}
	series.FetchedAt = meta.FetchedAt
	return series, nil
}

// FilePartitionStore keeps one CSV file of Date,Close rows per partition
// under dir, named {identifier}_{fy}.csv (or .csv.lz4 when compressed),
// next to a JSON sidecar holding coverage metadata
type FilePartitionStore struct {
	dir      string
	compress bool
	loc      *time.Location
}

func NewFilePartitionStore(dir string, compress bool, loc *time.Location) (*FilePartitionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Error().Err(err).Str("Dir", dir).Msg("could not create partition directory")
		return nil, err
	}
	return &FilePartitionStore{
		dir:      dir,
		compress: compress,
		loc:      loc,
	}, nil
}

var fileNameReplacer = strings.NewReplacer("/", "_", "\\", "_", ":", "_")

func (f *FilePartitionStore) base(ref PartitionRef) string {
	return filepath.Join(f.dir, fileNameReplacer.Replace(ref.String()))
}

func (f *FilePartitionStore) metaPath(ref PartitionRef) string {
	return f.base(ref) + ".json"
}

func (f *FilePartitionStore) dataPath(ref PartitionRef, compressed bool) string {
	if compressed {
		return f.base(ref) + ".csv.lz4"
	}
	return f.base(ref) + ".csv"
}

func (f *FilePartitionStore) Exists(_ context.Context, ref PartitionRef) (bool, error) {
	_, err := os.Stat(f.metaPath(ref))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (f *FilePartitionStore) Load(ctx context.Context, ref PartitionRef) (*Series, error) {
	_, span := otel.Tracer(opentelemetry.Name).Start(ctx, "data.FilePartitionStore.Load")
	defer span.End()
	span.SetAttributes(attribute.String("Partition", ref.String()))

	subLog := log.With().Str("Partition", ref.String()).Logger()

	metaBytes, err := os.ReadFile(f.metaPath(ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrPartitionNotFound, ref)
	} else if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read partition metadata failed")
		return nil, err
	}

	var meta partitionMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid partition metadata")
		subLog.Error().Err(err).Msg("could not unmarshal partition metadata")
		return nil, err
	}

	raw, err := os.ReadFile(f.dataPath(ref, meta.Compressed))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read partition data failed")
		subLog.Error().Err(err).Msg("partition metadata exists but data file is unreadable")
		return nil, err
	}

	if meta.Compressed {
		if raw, err = common.Decompress(raw); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "decompress partition failed")
			return nil, err
		}
	}

	points, err := readCloseCSV(bytes.NewReader(raw), f.loc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse partition failed")
		subLog.Error().Err(err).Msg("could not parse partition csv")
		return nil, err
	}

	return meta.series(ref, points, f.loc)
}

// Save writes the data file then the sidecar, each through a rename so a
// reader never observes a partial partition
func (f *FilePartitionStore) Save(ctx context.Context, series *Series) error {
	_, span := otel.Tracer(opentelemetry.Name).Start(ctx, "data.FilePartitionStore.Save")
	defer span.End()

	ref := series.Ref()
	span.SetAttributes(attribute.String("Partition", ref.String()))

	buf := &bytes.Buffer{}
	if err := writeCloseCSV(buf, series.points); err != nil {
		return err
	}

	content := buf.Bytes()
	if f.compress {
		var err error
		if content, err = common.Compress(content); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "compress partition failed")
			return err
		}
	}

	if err := writeFileAtomic(f.dataPath(ref, f.compress), content); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write partition failed")
		log.Error().Err(err).Str("Partition", ref.String()).Msg("could not write partition data")
		return err
	}

	metaBytes, err := json.Marshal(newPartitionMeta(series, f.compress))
	if err != nil {
		return err
	}

	if err := writeFileAtomic(f.metaPath(ref), metaBytes); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write partition metadata failed")
		log.Error().Err(err).Str("Partition", ref.String()).Msg("could not write partition metadata")
		return err
	}

	return nil
}

func writeFileAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), path)
}

func writeCloseCSV(w io.Writer, points []PricePoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Close"}); err != nil {
		return err
	}
	for _, pt := range points {
		if err := cw.Write([]string{dayKey(pt.Date), strconv.FormatFloat(pt.Close, 'f', -1, 64)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// readCloseCSV accepts any CSV with Date and Close columns; other OHLCV
// columns are ignored
func readCloseCSV(r io.Reader, loc *time.Location) ([]PricePoint, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	dateCol, closeCol := -1, -1
	for idx, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date":
			dateCol = idx
		case "close":
			closeCol = idx
		}
	}
	if dateCol < 0 || closeCol < 0 {
		return nil, fmt.Errorf("price csv must have Date and Close columns, got %v", header)
	}

	var points []PricePoint
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, err
		}

		date, err := common.ParseDate(rec[dateCol], loc)
		if err != nil {
			return nil, err
		}
		closePrice, err := strconv.ParseFloat(strings.TrimSpace(rec[closeCol]), 64)
		if err != nil {
			return nil, err
		}
		points = append(points, PricePoint{Date: date, Close: closePrice})
	}

	return points, nil
}
