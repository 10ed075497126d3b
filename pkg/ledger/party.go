package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
)

// PublicKey is the base58 encoding of an ed25519 public key.
type PublicKey string

// Verify reports whether sig is a valid signature of data by k.
func (k PublicKey) Verify(data, sig []byte) bool {
	raw, err := base58.Decode(string(k))
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(raw), data, sig)
}

// Short returns an abbreviated form used in logs.
func (k PublicKey) Short() string {
	if len(k) <= 8 {
		return string(k)
	}
	return string(k[:8])
}

// KeyPair holds a signing key owned by a node.
type KeyPair struct {
	Public  PublicKey
	private ed25519.PrivateKey
}

func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "error generating key pair")
	}
	return &KeyPair{
		Public:  PublicKey(base58.Encode(pub)),
		private: priv,
	}, nil
}

func (k *KeyPair) Sign(data []byte) Signature {
	return Signature{
		By:    k.Public,
		Bytes: ed25519.Sign(k.private, data),
	}
}

// Party is a ledger identity. A party without a name is anonymous: only its
// key is known and it must be resolved through an identity service.
type Party struct {
	Name string    `json:"name,omitempty" yaml:"name"`
	Key  PublicKey `json:"key" yaml:"key"`
}

// Anonymous returns the anonymous form of a key.
func Anonymous(key PublicKey) Party {
	return Party{Key: key}
}

func (p Party) IsAnonymous() bool {
	return p.Name == ""
}

func (p Party) String() string {
	if p.IsAnonymous() {
		return fmt.Sprintf("Anonymous(%s)", p.Key.Short())
	}
	return p.Name
}

// DistinctParties drops repeated parties while keeping the first occurrence order.
func DistinctParties(parties []Party) []Party {
	seen := make(map[Party]struct{}, len(parties))
	out := make([]Party, 0, len(parties))
	for _, p := range parties {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Keys returns the keys of the given parties.
func Keys(parties []Party) []PublicKey {
	keys := make([]PublicKey, 0, len(parties))
	for _, p := range parties {
		keys = append(keys, p.Key)
	}
	return keys
}

type keySet map[PublicKey]struct{}

func newKeySet(keys ...PublicKey) keySet {
	s := make(keySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s keySet) has(k PublicKey) bool {
	_, ok := s[k]
	return ok
}
