package ledger

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Network wires nodes and notaries that share a contract registry and a transport.
type Network struct {
	contracts *Contracts
	transport Transport
	logger    *log.Logger

	mu       sync.RWMutex
	nodes    map[string]*Node
	notaries map[PublicKey]*Notary
}

// NewNetwork uses an in-memory transport when transport is nil.
func NewNetwork(contracts *Contracts, transport Transport, logger *log.Logger) *Network {
	if transport == nil {
		transport = NewMemoryTransport(logger)
	}
	return &Network{
		contracts: contracts,
		transport: transport,
		logger:    logger,
		nodes:     make(map[string]*Node),
		notaries:  make(map[PublicKey]*Notary),
	}
}

func (n *Network) Contracts() *Contracts {
	return n.contracts
}

func (n *Network) AddNotary(name string, uniqueness UniquenessProvider) (*Notary, error) {
	notary, err := NewNotary(name, uniqueness, n.logger)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notaries[notary.Party().Key] = notary
	for _, node := range n.nodes {
		node.identities.RegisterWellKnown(notary.Party())
	}
	return notary, nil
}

// AddNode creates a node, introduces it to every known party and registers
// it with the transport.
func (n *Network) AddNode(name string) (*Node, error) {
	n.mu.Lock()
	if _, ok := n.nodes[name]; ok {
		n.mu.Unlock()
		return nil, errors.Errorf("node %s already exists", name)
	}
	node, err := newNode(name, n)
	if err != nil {
		n.mu.Unlock()
		return nil, err
	}
	for _, other := range n.nodes {
		other.identities.RegisterWellKnown(node.identity)
		node.identities.RegisterWellKnown(other.identity)
	}
	for _, notary := range n.notaries {
		node.identities.RegisterWellKnown(notary.Party())
	}
	n.nodes[name] = node
	n.mu.Unlock()

	if err := n.transport.Register(node); err != nil {
		return nil, errors.Wrapf(err, "error registering %s", name)
	}
	return node, nil
}

func (n *Network) Node(name string) (*Node, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	node, ok := n.nodes[name]
	return node, ok
}

func (n *Network) Nodes() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	nodes := make([]*Node, 0, len(n.nodes))
	for _, node := range n.nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].identity.Name < nodes[j].identity.Name })
	return nodes
}

func (n *Network) notary(key PublicKey) (*Notary, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	notary, ok := n.notaries[key]
	return notary, ok
}

func (n *Network) notaryParties() []Party {
	n.mu.RLock()
	defer n.mu.RUnlock()
	parties := make([]Party, 0, len(n.notaries))
	for _, notary := range n.notaries {
		parties = append(parties, notary.Party())
	}
	sort.Slice(parties, func(i, j int) bool { return parties[i].Name < parties[j].Name })
	return parties
}
