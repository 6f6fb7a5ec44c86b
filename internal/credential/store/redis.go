package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"semear/internal/credential"
	"semear/internal/did"
	"semear/internal/identity"
	"semear/pkg/platform/sentinel"
)

const (
	keyCredential = "semear:credential:"
	keyRef        = "semear:ref:"
	keyNumber     = "semear:cpf:"
	keySubject    = "semear:subject:"
	keyAll        = "semear:credentials"
	keyProducers  = "semear:producers"

	// DefaultRedisTTL keeps the shared cache bounded when it stands in for
	// Postgres.
	DefaultRedisTTL = 7 * 24 * time.Hour
)

// RedisStore keeps credentials in Redis with a TTL on every key. Index sets
// map identity numbers and subject DIDs to credential IDs.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

type RedisOption func(*RedisStore)

func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, ttl: DefaultRedisTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// redisRecord is the JSON form stored under keyCredential.
type redisRecord struct {
	ID           string    `json:"id"`
	Ref          string    `json:"ref"`
	Number       string    `json:"cpf"`
	ProducerName string    `json:"producer_name"`
	SubjectDID   string    `json:"subject_did"`
	Token        string    `json:"token"`
	Product      string    `json:"product"`
	Quantity     float64   `json:"quantity"`
	Unit         string    `json:"unit"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

func toRedisRecord(rec credential.Record) redisRecord {
	return redisRecord{
		ID:           rec.ID.String(),
		Ref:          string(rec.Ref),
		Number:       rec.Number.String(),
		ProducerName: rec.ProducerName,
		SubjectDID:   rec.SubjectDID.String(),
		Token:        rec.Token,
		Product:      rec.Product,
		Quantity:     rec.Quantity,
		Unit:         rec.Unit,
		IssuedAt:     rec.IssuedAt,
		ExpiresAt:    rec.ExpiresAt,
		CreatedAt:    rec.CreatedAt,
	}
}

func (r redisRecord) toRecord() credential.Record {
	return credential.Record{
		ID:           credential.ID(r.ID),
		Ref:          credential.Ref(r.Ref),
		Number:       identity.Number(r.Number),
		ProducerName: r.ProducerName,
		SubjectDID:   did.DID(r.SubjectDID),
		Token:        r.Token,
		Product:      r.Product,
		Quantity:     r.Quantity,
		Unit:         r.Unit,
		IssuedAt:     r.IssuedAt,
		ExpiresAt:    r.ExpiresAt,
		CreatedAt:    r.CreatedAt,
	}
}

func (s *RedisStore) Save(ctx context.Context, rec credential.Record) error {
	payload, err := json.Marshal(toRedisRecord(rec))
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	ok, err := s.client.SetNX(ctx, keyCredential+rec.ID.String(), payload, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}

	id := rec.ID.String()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, keyRef+string(rec.Ref), id, s.ttl)
		for _, key := range []string{keyNumber + rec.Number.String(), keySubject + rec.SubjectDID.String(), keyAll} {
			pipe.SAdd(ctx, key, id)
			pipe.Expire(ctx, key, s.ttl)
		}
		pipe.SAdd(ctx, keyProducers, rec.Number.String())
		pipe.Expire(ctx, keyProducers, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("index credential: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, id credential.ID) (credential.Record, error) {
	raw, err := s.client.Get(ctx, keyCredential+id.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return credential.Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return credential.Record{}, fmt.Errorf("find credential by id: %w", err)
	}
	var rr redisRecord
	if err := json.Unmarshal(raw, &rr); err != nil {
		return credential.Record{}, fmt.Errorf("decode credential: %w", err)
	}
	return rr.toRecord(), nil
}

func (s *RedisStore) FindByRef(ctx context.Context, ref credential.Ref) (credential.Record, error) {
	id, err := s.client.Get(ctx, keyRef+string(ref)).Result()
	if errors.Is(err, redis.Nil) {
		return credential.Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return credential.Record{}, fmt.Errorf("find credential by ref: %w", err)
	}
	return s.FindByID(ctx, credential.ID(id))
}

func (s *RedisStore) FindByNumber(ctx context.Context, n identity.Number) ([]credential.Record, error) {
	return s.fromIndexes(ctx, keyNumber+n.String())
}

func (s *RedisStore) FindBySubjects(ctx context.Context, subjects []did.DID) ([]credential.Record, error) {
	if len(subjects) == 0 {
		return []credential.Record{}, nil
	}
	keys := make([]string, len(subjects))
	for i, d := range subjects {
		keys[i] = keySubject + d.String()
	}
	return s.fromIndexes(ctx, keys...)
}

func (s *RedisStore) Stats(ctx context.Context) (credential.Stats, error) {
	var total, producers *redis.IntCmd
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		total = pipe.SCard(ctx, keyAll)
		producers = pipe.SCard(ctx, keyProducers)
		return nil
	})
	if err != nil {
		return credential.Stats{}, fmt.Errorf("credential stats: %w", err)
	}
	return credential.Stats{
		TotalCredentials: int(total.Val()),
		UniqueProducers:  int(producers.Val()),
	}, nil
}

func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// fromIndexes loads every credential referenced by the union of the given
// index sets. IDs whose record already expired are skipped.
func (s *RedisStore) fromIndexes(ctx context.Context, indexKeys ...string) ([]credential.Record, error) {
	ids, err := s.client.SUnion(ctx, indexKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read credential index: %w", err)
	}
	out := make([]credential.Record, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyCredential + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var rr redisRecord
		if err := json.Unmarshal([]byte(str), &rr); err != nil {
			return nil, fmt.Errorf("decode credential: %w", err)
		}
		out = append(out, rr.toRecord())
	}
	sortNewestFirst(out)
	return out, nil
}
