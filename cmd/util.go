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
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/penny-vault/pv-nav/common"
	"github.com/penny-vault/pv-nav/data"
	"github.com/penny-vault/pv-nav/data/database"
	"github.com/penny-vault/pv-nav/nav"
	"github.com/penny-vault/pv-nav/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// setup configures logging and tracing and, when needDB is set, connects to
// the database. The returned function flushes traces.
func setup(ctx context.Context, needDB bool) func() {
	common.SetupLogging()

	shutdown, err := opentelemetry.Setup(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not setup tracing; continuing without it")
		shutdown = func(context.Context) error { return nil }
	}

	if needDB {
		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
	}

	return func() {
		if err := shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("could not flush traces")
		}
		database.LogOpenTransactions()
	}
}

func newPartitionStore(loc *time.Location) (data.PartitionStore, error) {
	switch backend := strings.ToLower(viper.GetString("price.partition_backend")); backend {
	case "", "file":
		return data.NewFilePartitionStore(viper.GetString("price.partition_dir"), viper.GetBool("price.compress"), loc)
	case "database":
		return data.NewPgxPartitionStore(loc), nil
	case "memory":
		return data.NewMemoryPartitionStore(), nil
	case "redis":
		opt, err := redis.ParseURL(viper.GetString("redis.url"))
		if err != nil {
			log.Error().Err(err).Msg("could not parse redis URL")
			return nil, err
		}
		return data.NewRedisPartitionStore(redis.NewClient(opt), loc), nil
	default:
		return nil, fmt.Errorf("unknown partition backend %q", backend)
	}
}

// newPriceStore assembles the price subsystem from the price.* keys
func newPriceStore(loc *time.Location) (*data.PriceStore, error) {
	partitions, err := newPartitionStore(loc)
	if err != nil {
		return nil, err
	}

	symbols, err := data.LoadSymbolMap(viper.GetString("symbols.map"))
	if err != nil {
		return nil, err
	}

	provider, err := data.NewProvider(viper.GetString("price.provider"), viper.GetString("tiingo.token"), loc)
	if err != nil {
		return nil, err
	}

	cache, err := data.NewPriceCache(viper.GetInt("price.cache_size"))
	if err != nil {
		return nil, err
	}

	resolver := data.NewIdentifierResolver(partitions, symbols, data.ResolverOptions{
		VendorSuffix:   viper.GetString("price.vendor_suffix"),
		FetchByPrimary: viper.GetBool("price.fetch_by_primary"),
	})

	log.Info().Str("Provider", provider.Name()).
		Str("PartitionBackend", viper.GetString("price.partition_backend")).
		Int("CacheSize", cache.Cap()).
		Msg("price store ready")

	return data.NewPriceStore(resolver, partitions, provider, cache, data.StoreOptions{
		Location:    loc,
		PaddingDays: viper.GetInt("price.padding_days"),
		ProbeDays:   viper.GetInt("price.probe_days"),
	}), nil
}

func benchmarkSecurity() data.Security {
	return data.Security{
		ISIN:   strings.ToUpper(viper.GetString("nav.index_isin")),
		Ticker: strings.ToUpper(viper.GetString("nav.index_ticker")),
	}
}

// engineClock stops engines at nav.through when it is set
func engineClock(loc *time.Location) (nav.Clock, error) {
	clock := nav.Clock{Location: loc}
	if through := viper.GetString("nav.through"); through != "" {
		dt, err := common.ParseDate(through, loc)
		if err != nil {
			return clock, fmt.Errorf("nav.through must be %s: %w", common.DateFormat, err)
		}
		clock.Through = dt
	}
	return clock, nil
}
