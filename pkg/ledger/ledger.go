// Package ledger records consumed proof artifacts so none is accepted twice.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
)

// Ledger is a set of consumed artifact ids.
type Ledger interface {
	// Consume marks id consumed. It reports false when id already was.
	Consume(ctx context.Context, id common.Hash) (bool, error)
	Consumed(ctx context.Context, id common.Hash) (bool, error)
}

// ArtifactID identifies an artifact by its program and domain proofs.
func ArtifactID(programProof, domainProof []byte) common.Hash {
	return crypto.Keccak256Hash(programProof, domainProof)
}

type Memory struct {
	mu  sync.Mutex
	ids map[common.Hash]struct{}
}

func NewMemory() *Memory {
	return &Memory{ids: make(map[common.Hash]struct{})}
}

func (m *Memory) Consume(_ context.Context, id common.Hash) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ids[id]; ok {
		return false, nil
	}
	m.ids[id] = struct{}{}
	return true, nil
}

func (m *Memory) Consumed(_ context.Context, id common.Hash) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ids[id]
	return ok, nil
}

const defaultPrefix = "zkmint:artifact"

// Redis keeps the ledger in redis, shared by every process using the same
// prefix. A zero TTL keeps entries forever.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(id common.Hash) string {
	return fmt.Sprintf("%s:%s", r.prefix, id.Hex())
}

func (r *Redis) Consume(ctx context.Context, id common.Hash) (bool, error) {
	return r.client.SetNX(ctx, r.key(id), time.Now().Unix(), r.ttl).Result()
}

func (r *Redis) Consumed(ctx context.Context, id common.Hash) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(id)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
