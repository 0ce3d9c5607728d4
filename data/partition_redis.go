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
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"github.com/penny-vault/pv-nav/common"
	"github.com/penny-vault/pv-nav/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	redisKeyPrefix   = "pvnav:partition:"
	redisMetaField   = "meta"
	redisClosesField = "closes"
)

// RedisPartitionStore keeps each partition in one hash: an lz4 compressed
// Date,Close CSV next to the same JSON metadata the file store writes.
// Keys never expire.
type RedisPartitionStore struct {
	client redis.UniversalClient
	loc    *time.Location
}

func NewRedisPartitionStore(client redis.UniversalClient, loc *time.Location) *RedisPartitionStore {
	return &RedisPartitionStore{
		client: client,
		loc:    loc,
	}
}

func redisKey(ref PartitionRef) string {
	return redisKeyPrefix + ref.String()
}

func (r *RedisPartitionStore) Exists(ctx context.Context, ref PartitionRef) (bool, error) {
	n, err := r.client.Exists(ctx, redisKey(ref)).Result()
	if err != nil {
		log.Error().Err(err).Str("Partition", ref.String()).Msg("redis exists failed")
		return false, err
	}
	return n > 0, nil
}

func (r *RedisPartitionStore) Load(ctx context.Context, ref PartitionRef) (*Series, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "data.RedisPartitionStore.Load")
	defer span.End()
	span.SetAttributes(attribute.String("Partition", ref.String()))

	fields, err := r.client.HGetAll(ctx, redisKey(ref)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "redis hgetall failed")
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPartitionNotFound, ref)
	}

	var meta partitionMeta
	if err := json.Unmarshal([]byte(fields[redisMetaField]), &meta); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid partition metadata")
		log.Error().Err(err).Str("Partition", ref.String()).Msg("could not unmarshal partition metadata")
		return nil, err
	}

	raw, err := common.Decompress([]byte(fields[redisClosesField]))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decompress partition failed")
		return nil, err
	}

	points, err := readCloseCSV(bytes.NewReader(raw), r.loc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse partition failed")
		return nil, err
	}

	return meta.series(ref, points, r.loc)
}

// Save replaces the hash in a MULTI/EXEC block so readers see either the
// old partition or the new one
func (r *RedisPartitionStore) Save(ctx context.Context, series *Series) error {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "data.RedisPartitionStore.Save")
	defer span.End()

	ref := series.Ref()
	span.SetAttributes(attribute.String("Partition", ref.String()))

	buf := &bytes.Buffer{}
	if err := writeCloseCSV(buf, series.points); err != nil {
		return err
	}
	closes, err := common.Compress(buf.Bytes())
	if err != nil {
		return err
	}

	meta, err := json.Marshal(newPartitionMeta(series, true))
	if err != nil {
		return err
	}

	key := redisKey(ref)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, redisMetaField, meta, redisClosesField, closes)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "redis save failed")
		log.Error().Err(err).Str("Partition", ref.String()).Msg("could not save partition to redis")
		return err
	}
	return nil
}
