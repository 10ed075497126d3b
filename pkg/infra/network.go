package infra

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	backend "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/partiture/partiture/internal/contracts"
	"github.com/partiture/partiture/pkg/ledger"
	"github.com/partiture/partiture/pkg/transport"
)

const redisKeyPrefix = "partiture:"

// Network is the ledger network the driver runs flows on, together with the
// connections it has to release.
type Network struct {
	*ledger.Network
	initiator *ledger.Node
	transport *transport.Transport
	redis     *backend.Client
}

func createUniqueness(ctx context.Context, c *Config, logger *log.Logger) (ledger.UniquenessProvider, *backend.Client, error) {
	if c.Uniqueness != UniquenessRedis {
		return ledger.NewMemoryUniqueness(), nil, nil
	}
	client := backend.NewClient(&backend.Options{Addr: c.RedisAddress})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, errors.Wrapf(err, "fail to connect to redis %s", c.RedisAddress)
	}
	return ledger.NewRedisUniqueness(client, redisKeyPrefix, logger), client, nil
}

// NewNetwork starts the notary and one node per configured party, with the
// responders of every example flow installed.
func NewNetwork(ctx context.Context, c *Config, logger *log.Logger, opts ...transport.Option) (*Network, error) {
	n := &Network{}

	var t ledger.Transport
	if c.Transport == TransportGRPC {
		n.transport = transport.New(c.addresses(), logger, opts...)
		t = n.transport
	}

	registry := ledger.NewContracts()
	contracts.Register(registry)
	n.Network = ledger.NewNetwork(registry, t, logger)

	uniqueness, client, err := createUniqueness(ctx, c, logger)
	if err != nil {
		return nil, err
	}
	n.redis = client

	if _, err := n.AddNotary(c.Notary, uniqueness); err != nil {
		n.Close()
		return nil, errors.Wrapf(err, "fail to create notary %s", c.Notary)
	}

	for _, p := range c.Parties {
		node, err := n.AddNode(p.Name)
		if err != nil {
			n.Close()
			return nil, errors.Wrapf(err, "fail to create node %s", p.Name)
		}
		contracts.RegisterResponders(node, logger)
		if p.Name == c.Initiator {
			n.initiator = node
		}
	}

	return n, nil
}

func (n *Network) Initiator() *ledger.Node {
	return n.initiator
}

func (n *Network) Close() error {
	var result *multierror.Error
	if n.transport != nil {
		n.transport.Stop()
	}
	if n.redis != nil {
		if err := n.redis.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "fail to close redis client"))
		}
	}
	return result.ErrorOrNil()
}
