package infra

import (
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/partiture/partiture/pkg/flow"
)

const (
	TransportMemory = "memory"
	TransportGRPC   = "grpc"

	UniquenessMemory = "memory"
	UniquenessRedis  = "redis"

	TxTypeYo    = "yo"
	TxTypeNote  = "note"
	TxTypeMixed = "mixed"
)

type Party struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"` // only used by the grpc transport
}

type Config struct {
	// Network
	Parties      []Party `yaml:"parties"`      // every node of the network
	Notary       string  `yaml:"notary"`       // name of the notary
	Initiator    string  `yaml:"initiator"`    // the party that starts every flow
	Transport    string  `yaml:"transport"`    // ['memory', 'grpc']
	Uniqueness   string  `yaml:"uniqueness"`   // ['memory', 'redis']
	RedisAddress string  `yaml:"redisAddress"` // used if uniqueness is 'redis'

	SyncMode flow.IdentitySyncMode `yaml:"syncMode"` // ['NORMAL', 'FORCE', 'SKIP']

	Rate  int `yaml:"rate"`  // average speed of flow invocations, 0 is unlimited
	Burst int `yaml:"burst"` // maximum speed of flow invocations

	TxNum          int     `yaml:"txNum"`          // number of flow invocations
	TxType         string  `yaml:"txType"`         // ['yo', 'note', 'mixed']
	AnonymousRatio float64 `yaml:"anonymousRatio"` // percentage of yo's sent from a confidential identity
	Concurrency    int     `yaml:"concurrency"`    // maximum number of flows in flight

	Timeout time.Duration `yaml:"timeout"` // per flow invocation, 0 is none

	LogPath      string `yaml:"logPath"`      // path of the log file
	ReportPath   string `yaml:"reportPath"`   // path of the report file
	WorkloadPath string `yaml:"workloadPath"` // path of the generated workload

	AdminAddress string `yaml:"adminAddress"` // serves /metrics, /healthz and /progress if set

	Seed int `yaml:"seed"` // random seed
}

func (c *Config) loadRawConfigFromFile(filename string) error {
	raw, err := ioutil.ReadFile(filename)
	if err != nil {
		return errors.Wrapf(err, "fail to load %s", filename)
	}

	if err := yaml.UnmarshalStrict(raw, c); err != nil {
		return errors.Wrapf(err, "fail to unmarshal %s", filename)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Transport == "" {
		c.Transport = TransportMemory
	}
	if c.Uniqueness == "" {
		c.Uniqueness = UniquenessMemory
	}
	if c.TxType == "" {
		c.TxType = TxTypeYo
	}
	if c.Burst == 0 {
		c.Burst = 1
	}
	if c.Concurrency == 0 {
		c.Concurrency = 1
	}
	if c.LogPath == "" {
		c.LogPath = "log.transactions"
	}
	if c.ReportPath == "" {
		c.ReportPath = "report.txt"
	}
	if c.WorkloadPath == "" {
		c.WorkloadPath = "WORKLOAD.txt"
	}
}

func (c *Config) hasParty(name string) bool {
	for _, p := range c.Parties {
		if p.Name == name {
			return true
		}
	}
	return false
}

func (c *Config) validate() error {
	if len(c.Parties) < 2 {
		return errors.Errorf("at least 2 parties are required, found %d", len(c.Parties))
	}

	seen := make(map[string]bool, len(c.Parties))
	for _, p := range c.Parties {
		if p.Name == "" {
			return errors.New("party name is empty")
		}
		if seen[p.Name] {
			return errors.Errorf("party %s is declared twice", p.Name)
		}
		seen[p.Name] = true
		if c.Transport == TransportGRPC && p.Address == "" {
			return errors.Errorf("party %s has no address", p.Name)
		}
	}

	if c.Notary == "" {
		return errors.New("notary is not set")
	}
	if seen[c.Notary] {
		return errors.Errorf("notary %s must not be a party", c.Notary)
	}
	if !c.hasParty(c.Initiator) {
		return errors.Errorf("initiator %s is not a party", c.Initiator)
	}

	switch c.Transport {
	case TransportMemory, TransportGRPC:
	default:
		return errors.Errorf("unknown transport %s", c.Transport)
	}

	switch c.Uniqueness {
	case UniquenessMemory:
	case UniquenessRedis:
		if c.RedisAddress == "" {
			return errors.New("redisAddress is required by the redis uniqueness provider")
		}
	default:
		return errors.Errorf("unknown uniqueness provider %s", c.Uniqueness)
	}

	switch c.TxType {
	case TxTypeYo, TxTypeNote, TxTypeMixed:
	default:
		return errors.Errorf("unknown txType %s", c.TxType)
	}

	if c.TxNum < 1 {
		return errors.Errorf("txNum %d is not a positive number", c.TxNum)
	}

	if c.Rate < 0 {
		return errors.Errorf("rate %d is not a zero (unlimited) or positive number", c.Rate)
	}

	if c.Burst < 1 {
		return errors.Errorf("burst %d is not greater than 1", c.Burst)
	}

	if c.Rate > c.Burst {
		c.Rate = c.Burst
	}

	if c.Concurrency < 1 {
		return errors.Errorf("concurrency %d is not a positive number", c.Concurrency)
	}

	if c.AnonymousRatio < 0 || c.AnonymousRatio > 1 {
		return errors.Errorf("anonymous ratio %f is not within the range of [0, 1]", c.AnonymousRatio)
	}

	if c.Timeout < 0 {
		return errors.Errorf("timeout %s is negative", c.Timeout)
	}

	return nil
}

// addresses maps every party to its listening address.
func (c *Config) addresses() map[string]string {
	m := make(map[string]string, len(c.Parties))
	for _, p := range c.Parties {
		m[p.Name] = p.Address
	}
	return m
}

func LoadConfigFromFile(filename string) (*Config, error) {
	c := &Config{}

	if err := c.loadRawConfigFromFile(filename); err != nil {
		return nil, err
	}
	c.setDefaults()

	if err := c.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", filename)
	}

	return c, nil
}
