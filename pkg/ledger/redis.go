package ledger

import (
	"context"

	"github.com/pkg/errors"
	backend "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// RedisUniqueness keeps spent state refs in redis so that several notary
// workers can share one commit log.
type RedisUniqueness struct {
	client *backend.Client
	prefix string
	logger *log.Entry
}

func NewRedisUniqueness(client *backend.Client, prefix string, logger *log.Logger) *RedisUniqueness {
	return &RedisUniqueness{
		client: client,
		prefix: prefix,
		logger: logger.WithField("uniqueness", "redis"),
	}
}

func (r *RedisUniqueness) key(ref StateRef) string {
	return r.prefix + "spent:" + ref.String()
}

func (r *RedisUniqueness) Commit(ctx context.Context, refs []StateRef, txID string) error {
	var (
		taken     []string
		conflicts []StateRef
	)
	for _, ref := range refs {
		key := r.key(ref)
		ok, err := r.client.SetNX(ctx, key, txID, 0).Result()
		if err != nil {
			r.release(ctx, taken)
			return errors.Wrapf(err, "error committing %s", ref)
		}
		if ok {
			taken = append(taken, key)
			continue
		}
		by, err := r.client.Get(ctx, key).Result()
		if err != nil {
			r.release(ctx, taken)
			return errors.Wrapf(err, "error reading %s", ref)
		}
		if by != txID {
			conflicts = append(conflicts, ref)
		}
	}
	if len(conflicts) > 0 {
		r.release(ctx, taken)
		return newNotaryError(txID, conflicts, "input states of %s already consumed: %v", txID, conflicts)
	}
	return nil
}

func (r *RedisUniqueness) release(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.logger.Warnf("Fail to release %v: %v", keys, err)
	}
}
