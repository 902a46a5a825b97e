// Package keys provides the object key strategies used when storing records.
package keys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// KeyFunc returns the object key for an encoded record.
type KeyFunc func(ctx context.Context, body []byte) (key string, err error)

// Strategy names accepted by FromStrategy.
const (
	StrategyFixed       = "fixed"
	StrategyUUID        = "uuid"
	StrategyHash        = "hash"
	StrategyPartitioned = "partitioned"
)

// Fixed writes every record to the same key, so each write replaces the last.
func Fixed(key string) KeyFunc {
	return func(ctx context.Context, _ []byte) (string, error) {
		if key == "" {
			return "", fmt.Errorf("fixed key is empty")
		}
		return key, nil
	}
}

// UUID names each record with a random v4 UUID.
func UUID(ext string) KeyFunc {
	return func(ctx context.Context, _ []byte) (string, error) {
		id, err := uuid.NewRandom()
		if err != nil {
			return "", fmt.Errorf("generate key: %w", err)
		}
		return id.String() + ext, nil
	}
}

// ContentHash names each record by the SHA-256 of its encoded bytes. Equal
// records share a key.
func ContentHash(ext string) KeyFunc {
	return func(ctx context.Context, body []byte) (string, error) {
		sum := sha256.Sum256(body)
		return hex.EncodeToString(sum[:]) + ext, nil
	}
}

// Partitioned places each record under a dt=YYYY-MM-DD prefix (UTC) with a
// UUID name. now defaults to time.Now.
func Partitioned(ext string, now func() time.Time) KeyFunc {
	if now == nil {
		now = time.Now
	}
	name := UUID(ext)
	return func(ctx context.Context, body []byte) (string, error) {
		leaf, err := name(ctx, body)
		if err != nil {
			return "", err
		}
		return "dt=" + now().UTC().Format(time.DateOnly) + "/" + leaf, nil
	}
}

// FromStrategy resolves a strategy name. fixedKey is only used by "fixed".
func FromStrategy(strategy, fixedKey, ext string) (KeyFunc, error) {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case StrategyFixed:
		if fixedKey == "" {
			return nil, fmt.Errorf("strategy %q needs a key", StrategyFixed)
		}
		return Fixed(fixedKey), nil
	case StrategyUUID, "":
		return UUID(ext), nil
	case StrategyHash:
		return ContentHash(ext), nil
	case StrategyPartitioned:
		return Partitioned(ext, nil), nil
	default:
		return nil, fmt.Errorf("unknown key strategy: %q", strategy)
	}
}
