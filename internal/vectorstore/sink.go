// Package vectorstore writes finished (element, vector, attributes) triples
// to their destination: a Redis vector set, or an in-memory buffer exported
// as a JSON file at job completion.
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Sink accepts one finished element.
type Sink interface {
	Insert(ctx context.Context, set, element string, vector []float32, attributes map[string]string) error
}

// RedisSink stores elements in a Redis vector set via VADD.
type RedisSink struct {
	rdb *redis.Client
}

// NewRedisSink wraps an existing client.
func NewRedisSink(rdb *redis.Client) *RedisSink {
	return &RedisSink{rdb: rdb}
}

// Insert issues a single VADD carrying the vector and, when present, the
// element attributes as a JSON payload.
func (s *RedisSink) Insert(ctx context.Context, set, element string, vector []float32, attributes map[string]string) error {
	args, err := vaddArgs(set, element, vector, attributes)
	if err != nil {
		return err
	}
	if err := s.rdb.Do(ctx, args...).Err(); err != nil {
		return fmt.Errorf("vector store insert failed: %w", err)
	}
	return nil
}

// Cardinality returns the element count of a vector set, zero when the set
// does not exist.
func (s *RedisSink) Cardinality(ctx context.Context, set string) (int64, error) {
	n, err := s.rdb.Do(ctx, "VCARD", set).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read vector set cardinality: %w", err)
	}
	return n, nil
}

// vaddArgs builds the VADD argument list:
//
//	VADD <set> VALUES <dim> <v0> ... <vN> <element> [SETATTR <json>]
func vaddArgs(set, element string, vector []float32, attributes map[string]string) ([]any, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector store insert failed: empty vector for element %q", element)
	}
	args := make([]any, 0, len(vector)+6)
	args = append(args, "VADD", set, "VALUES", strconv.Itoa(len(vector)))
	for _, v := range vector {
		args = append(args, strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	args = append(args, element)
	if len(attributes) > 0 {
		encoded, err := json.Marshal(attributes)
		if err != nil {
			return nil, fmt.Errorf("failed to encode attributes for element %q: %w", element, err)
		}
		args = append(args, "SETATTR", string(encoded))
	}
	return args, nil
}
