package ledger

import (
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// LockKeySigner is the mutex name guarding a signer's account sequence.
func LockKeySigner(signer string) string {
	return fmt.Sprintf("zkmint:signer:%s", signer)
}

// NewSignerLock returns a cross-process mutex for signer. It expires after
// ttl so a crashed holder cannot wedge the signer.
func NewSignerLock(client redis.UniversalClient, signer string, ttl time.Duration) *redsync.Mutex {
	rs := redsync.New(goredis.NewPool(client))
	return rs.NewMutex(LockKeySigner(signer), redsync.WithExpiry(ttl), redsync.WithTries(1))
}
