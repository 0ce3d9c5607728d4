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

package database

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// PgxIface is the subset of pgxpool.Pool used by pvnav; pgxmock satisfies it
type PgxIface interface {
	Begin(context.Context) (pgx.Tx, error)
}

var (
	ErrNotConnected = errors.New("database pool has not been configured")
)

var (
	pool             PgxIface
	role             string
	openTransactions map[string]string
	trxLock          sync.Mutex
)

// SetPool installs the pool used by Trx. Passing a pgxmock connection is how
// tests intercept every query.
func SetPool(myPool PgxIface) {
	trxLock.Lock()
	defer trxLock.Unlock()
	openTransactions = make(map[string]string)
	pool = myPool
}

// SetRole makes every subsequent transaction switch to the named postgres
// role. An empty role keeps the login role.
func SetRole(name string) {
	role = name
}

func Connect(ctx context.Context) error {
	myPool, err := pgxpool.Connect(ctx, viper.GetString("database.url"))
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not connect to pool")
		return err
	}
	if err = myPool.Ping(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not ping database server")
		return err
	}
	SetPool(myPool)
	SetRole(viper.GetString("database.role"))
	return nil
}

// LogOpenTransactions writes an INFO log for each open transaction
func LogOpenTransactions() {
	trxLock.Lock()
	defer trxLock.Unlock()
	for k, v := range openTransactions {
		log.Info().Str("TrxId", k).Str("Caller", v).Msg("open transaction")
	}
}

// OpenTransactions is the number of transactions begun but not yet
// committed or rolled back
func OpenTransactions() int {
	trxLock.Lock()
	defer trxLock.Unlock()
	return len(openTransactions)
}

func track(id, caller string) {
	trxLock.Lock()
	defer trxLock.Unlock()
	openTransactions[id] = caller
}

func untrack(id string) {
	trxLock.Lock()
	defer trxLock.Unlock()
	delete(openTransactions, id)
}

// Trx begins a tracked transaction, switching to the configured role when
// one is set
func Trx(ctx context.Context) (pgx.Tx, error) {
	if pool == nil {
		return nil, ErrNotConnected
	}

	trx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}

	_, file, lineno, ok := runtime.Caller(1)
	wrappedTrx := &NavTx{
		id: uuid.New().String(),
		tx: trx,
	}
	track(wrappedTrx.id, fmt.Sprintf("[%v] %s:%d", ok, file, lineno))

	if role != "" {
		ident := pgx.Identifier{role}
		if _, err := wrappedTrx.Exec(ctx, fmt.Sprintf("SET ROLE %s", ident.Sanitize())); err != nil {
			log.Error().Err(err).Str("Role", role).Msg("could not switch role")
			if err := wrappedTrx.Rollback(ctx); err != nil {
				log.Error().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
	}

	return wrappedTrx, nil
}

// Rollback is a helper for error paths; the rollback failure is logged and
// swallowed because the caller already has an error to return
func Rollback(ctx context.Context, trx pgx.Tx) {
	if err := trx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		log.Error().Err(err).Msg("could not rollback transaction")
	}
}
