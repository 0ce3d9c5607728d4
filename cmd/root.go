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
	"fmt"
	"os"

	"github.com/penny-vault/pv-nav/common"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func bindPersistent(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		log.Panic().Err(err).Str("Key", key).Msg("could not bind flag")
	}
}

func init() {
	viper.SetDefault("timezone", "Asia/Kolkata")
	viper.SetDefault("price.provider", "yahoo")
	viper.SetDefault("price.cache_size", 50)
	viper.SetDefault("price.partition_backend", "file")
	viper.SetDefault("price.partition_dir", "partitions")
	viper.SetDefault("price.compress", true)
	viper.SetDefault("price.vendor_suffix", ".NS")
	viper.SetDefault("price.fetch_by_primary", true)
	viper.SetDefault("price.probe_days", 7)
	viper.SetDefault("price.padding_days", 2)
	viper.SetDefault("nav.index_ticker", "NIFTY50")
	viper.SetDefault("server.port", 3000)
	viper.SetDefault("server.schedule", "18:30")

	// Database
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL connection string")
	bindPersistent("database.url", "database-url")

	// Logging configuration
	rootCmd.PersistentFlags().String("log-level", "info", "Logging level")
	bindPersistent("log.level", "log-level")

	rootCmd.PersistentFlags().Bool("log-pretty", false, "Print logs in a human readable format instead of json")
	bindPersistent("log.pretty", "log-pretty")

	rootCmd.PersistentFlags().Bool("log-report-caller", false, "Log function name that called log statement")
	bindPersistent("log.report_caller", "log-report-caller")

	rootCmd.PersistentFlags().String("log-output", "stderr", "Write logs to `stdout` or `stderr`")
	bindPersistent("log.output", "log-output")

	// Prices
	rootCmd.PersistentFlags().String("timezone", "Asia/Kolkata", "Market timezone used to decide calendar days")
	bindPersistent("timezone", "timezone")

	rootCmd.PersistentFlags().String("provider", "yahoo", "Price provider, one of: yahoo, tiingo")
	bindPersistent("price.provider", "provider")

	rootCmd.PersistentFlags().String("partition-dir", "partitions", "Directory holding price partitions")
	bindPersistent("price.partition_dir", "partition-dir")

	rootCmd.PersistentFlags().String("partition-backend", "file", "Where price partitions are kept, one of: file, database, redis, memory")
	bindPersistent("price.partition_backend", "partition-backend")

	rootCmd.PersistentFlags().String("redis-url", "", "Redis URL for the redis partition backend")
	bindPersistent("redis.url", "redis-url")

	rootCmd.PersistentFlags().String("symbol-map", "", "YAML file mapping ISINs and tickers to vendor symbols")
	bindPersistent("symbols.map", "symbol-map")

	rootCmd.PersistentFlags().String("tiingo-token", "", "Tiingo API token")
	bindPersistent("tiingo.token", "tiingo-token")

	// NAV
	rootCmd.PersistentFlags().String("index-ticker", "NIFTY50", "Ticker of the benchmark index")
	bindPersistent("nav.index_ticker", "index-ticker")

	rootCmd.PersistentFlags().String("index-isin", "", "ISIN of the benchmark index, if it has one")
	bindPersistent("nav.index_isin", "index-isin")

	rootCmd.PersistentFlags().String("through", "", "Last day to compute, specified as YYYY-MM-DD; defaults to yesterday")
	bindPersistent("nav.through", "through")
}

var rootCmd = &cobra.Command{
	Use:     "pvnav",
	Version: common.CurrentVersion.String(),
	Short:   "Reconstruct the daily NAV of a portfolio and its benchmark index",
	Long: `pvnav replays a bank statement and a trade report day by day, pricing
each day at the benchmark's and the holdings' closing prices.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
