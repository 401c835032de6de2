package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"duel-match-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const mutateRetries = 5

// MatchStore keeps each match as a Redis hash, one hash field per document
// path, and broadcasts the full document over pub/sub after every write.
// Notes:
//   - UpdateFields maps directly onto HSET: disjoint paths never contend.
//   - Mutate runs under WATCH, so a concurrent commit fails the transaction
//     and the read-apply-write cycle retries from a fresh snapshot. That is
//     the optimistic-concurrency discipline that closes the lost-update
//     window of a bare read-modify-overwrite.
type MatchStore struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewMatchStore(client *redis.Client, log zerolog.Logger) *MatchStore {
	return &MatchStore{
		client: client,
		log:    log.With().Str("component", "redis_match_store").Logger(),
	}
}

func (s *MatchStore) Create(ctx context.Context, m *domain.Match) error {
	key := s.key(m.Code)
	claimed, err := s.client.HSetNX(ctx, key, domain.FieldCode, mustEncode(m.Code)).Result()
	if err != nil {
		return transportErr(err)
	}
	if !claimed {
		return domain.ErrCodeTaken
	}

	fields, err := encodeFields(m.FieldMap())
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, key, fields).Err(); err != nil {
		return transportErr(err)
	}
	s.publish(ctx, m)
	return nil
}

func (s *MatchStore) Get(ctx context.Context, code string) (*domain.Match, error) {
	raw, err := s.client.HGetAll(ctx, s.key(code)).Result()
	if err != nil {
		return nil, transportErr(err)
	}
	if len(raw) == 0 {
		return nil, domain.ErrNotFound
	}
	return decodeMatch(raw)
}

func (s *MatchStore) UpdateFields(ctx context.Context, code string, fields map[string]any) error {
	encoded, err := encodeFields(fields)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.key(code), encoded).Err(); err != nil {
		return transportErr(err)
	}
	m, err := s.Get(ctx, code)
	if err != nil {
		return err
	}
	s.publish(ctx, m)
	return nil
}

func (s *MatchStore) Mutate(ctx context.Context, code string, fn func(*domain.Match) error) (*domain.Match, error) {
	key := s.key(code)

	var result *domain.Match
	for attempt := 0; attempt < mutateRetries; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return transportErr(err)
			}
			if len(raw) == 0 {
				return domain.ErrNotFound
			}
			m, err := decodeMatch(raw)
			if err != nil {
				return err
			}
			if err := fn(m); err != nil {
				return err
			}
			fields, err := encodeFields(m.FieldMap())
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, fields)
				return nil
			})
			if err != nil {
				return err
			}
			result = m
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			s.log.Debug().Str("code", code).Int("attempt", attempt+1).Msg("mutate conflict, retrying from fresh snapshot")
			continue
		}
		if err != nil {
			return nil, err
		}
		s.publish(ctx, result)
		return result, nil
	}
	return nil, fmt.Errorf("%w: mutate conflict persisted after %d attempts", domain.ErrTransportFailure, mutateRetries)
}

func (s *MatchStore) Watch(ctx context.Context, code string) (<-chan *domain.Match, func(), error) {
	initial, err := s.Get(ctx, code)
	if err != nil {
		return nil, nil, err
	}

	pubsub := s.client.Subscribe(ctx, s.channel(code))
	ch := make(chan *domain.Match, 8)
	ch <- initial

	done := make(chan struct{})
	go func() {
		defer close(ch)
		for {
			select {
			case <-done:
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				m := &domain.Match{}
				if err := json.Unmarshal([]byte(msg.Payload), m); err != nil {
					s.log.Warn().Err(err).Str("code", code).Msg("dropping undecodable match update")
					continue
				}
				select {
				case ch <- m:
				default:
					// Slow watcher: drop the stale snapshot.
					select {
					case <-ch:
					default:
					}
					ch <- m
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return ch, cancel, nil
}

func (s *MatchStore) publish(ctx context.Context, m *domain.Match) {
	data, err := json.Marshal(m)
	if err != nil {
		s.log.Error().Err(err).Str("code", m.Code).Msg("marshal match for publish")
		return
	}
	if err := s.client.Publish(ctx, s.channel(m.Code), data).Err(); err != nil {
		s.log.Warn().Err(err).Str("code", m.Code).Msg("publish match update")
	}
}

func (s *MatchStore) key(code string) string {
	return "match:" + code
}

func (s *MatchStore) channel(code string) string {
	return "match:" + code + ":updates"
}

func transportErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrTransportFailure, err)
}
