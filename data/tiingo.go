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
	"io"
	"net/http"
	"net/url"
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

var tiingoAPI = "https://api.tiingo.com"

type tiingo struct {
	apikey string
	loc    *time.Location
}

type tiingoJSONResponse struct {
	Date     string  `json:"date"`
	Close    float64 `json:"close"`
	AdjClose float64 `json:"adjClose"`
}

// NewTiingo Create a new Tiingo data provider
func NewTiingo(key string, loc *time.Location) *tiingo {
	return &tiingo{
		apikey: key,
		loc:    loc,
	}
}

func (t *tiingo) Name() string {
	return "tiingo"
}

func (t *tiingo) FetchDaily(ctx context.Context, symbol string, begin, end time.Time) ([]PricePoint, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "tiingo.FetchDaily")
	defer span.End()

	subLog := log.With().Str("Symbol", symbol).Str("Begin", begin.Format(common.DateFormat)).Str("End", end.Format(common.DateFormat)).Logger()

	path := fmt.Sprintf("%s/tiingo/daily/%s/prices?startDate=%s&endDate=%s", tiingoAPI, url.PathEscape(strings.ToLower(symbol)),
		begin.Format(common.DateFormat), end.Format(common.DateFormat))
	span.SetAttributes(attribute.String("Url", path), attribute.String("Symbol", symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path+"&token="+t.apikey, nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		msg := "tiingo http request failed"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Msg(msg)
		return nil, fmt.Errorf("%w: %s", ErrProviderRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not read tiingo body")
		return nil, err
	}

	span.SetAttributes(attribute.Int("StatusCode", resp.StatusCode))
	if resp.StatusCode == http.StatusNotFound {
		subLog.Debug().Msg("tiingo does not know symbol")
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		msg := "tiingo returned invalid response code"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Int("HTTPResponseStatusCode", resp.StatusCode).Bytes("Body", body).Msg(msg)
		return nil, fmt.Errorf("%w: HTTP status %d", ErrProviderRequest, resp.StatusCode)
	}

	jsonResp := []tiingoJSONResponse{}
	if err := json.Unmarshal(body, &jsonResp); err != nil {
		span.RecordError(err)
		msg := "could not unmarshal json"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Bytes("Body", body).Msg(msg)
		return nil, err
	}

	points := make([]PricePoint, 0, len(jsonResp))
	for _, row := range jsonResp {
		dtParts := strings.Split(row.Date, "T")
		day, err := time.ParseInLocation(common.DateFormat, dtParts[0], t.loc)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cannot parse date string")
			subLog.Error().Err(err).Str("DateStr", row.Date).Msg("cannot parse date string")
			return nil, err
		}
		if row.Close <= 0 {
			continue
		}
		points = append(points, PricePoint{Date: day, Close: row.Close})
	}

	subLog.Debug().Int("Rows", len(points)).Msg("fetched tiingo prices")
	return points, nil
}
