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
	"os"
	"os/signal"

	"github.com/go-co-op/gocron"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/penny-vault/pv-nav/common"
	"github.com/penny-vault/pv-nav/handler"
	"github.com/penny-vault/pv-nav/middleware"
	"github.com/penny-vault/pv-nav/nav"
	"github.com/penny-vault/pv-nav/router"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	serveCmd.Flags().IntP("port", "p", 3000, "Port to run application server on")
	if err := viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port")); err != nil {
		log.Panic().Err(err).Msg("could not bind server.port")
	}

	serveCmd.Flags().String("schedule", "18:30", "Time of day (HH:MM, market timezone) to extend the NAV series")
	if err := viper.BindPFlag("server.schedule", serveCmd.Flags().Lookup("schedule")); err != nil {
		log.Panic().Err(err).Msg("could not bind server.schedule")
	}

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the NAV API server",
	Long:  `Serve stored NAV histories over HTTP and extend them once a day`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cleanup := setup(ctx, true)
		defer cleanup()

		loc := common.GetTimezone()
		prices, err := newPriceStore(loc)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create price store")
		}

		app := fiber.New(fiber.Config{
			JSONEncoder: json.Marshal,
			JSONDecoder: json.Unmarshal,
		})

		// shutdown cleanly on interrupt
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		go func() {
			sig := <-c
			log.Info().Str("Signal", sig.String()).Msg("shutting down")
			if err := app.Shutdown(); err != nil {
				log.Error().Err(err).Msg("could not shutdown server")
			}
		}()

		app.Use(middleware.NewLogger())
		app.Use(middleware.NewTracer())
		router.SetupRoutes(app, handler.New(nav.NewPgxStore(loc), prices, loc))

		schedule := viper.GetString("server.schedule")
		scheduler := gocron.NewScheduler(loc)
		if _, err := scheduler.Every(1).Day().At(schedule).Do(func() {
			if err := newNavJob(loc, prices, false, false).update(context.Background()); err != nil {
				log.Error().Err(err).Msg("scheduled update failed")
			}
		}); err != nil {
			log.Fatal().Err(err).Str("Schedule", schedule).Msg("could not schedule update")
		}
		scheduler.StartAsync()
		defer scheduler.Stop()

		if err := app.Listen(":" + viper.GetString("server.port")); err != nil {
			log.Error().Err(err).Msg("server stopped")
		}
	},
}
