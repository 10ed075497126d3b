package ledger

import (
	"sort"
	"sync"
)

// IdentityMapping proves that an anonymous key belongs to a well-known party.
type IdentityMapping struct {
	Key   PublicKey `json:"key"`
	Owner Party     `json:"owner"`
	Proof []byte    `json:"proof"`
}

func identityProofPayload(key PublicKey) []byte {
	return []byte("partiture-identity:" + string(key))
}

func (m IdentityMapping) Valid() bool {
	return !m.Owner.IsAnonymous() && m.Owner.Key.Verify(identityProofPayload(m.Key), m.Proof)
}

// IdentityService maps keys to the well-known parties that own them.
type IdentityService struct {
	mu        sync.RWMutex
	wellKnown map[PublicKey]Party
	byName    map[string]Party
}

func NewIdentityService() *IdentityService {
	return &IdentityService{
		wellKnown: make(map[PublicKey]Party),
		byName:    make(map[string]Party),
	}
}

func (s *IdentityService) RegisterWellKnown(p Party) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wellKnown[p.Key] = p
	s.byName[p.Name] = p
}

// RegisterAnonymous records that key is owned by owner.
func (s *IdentityService) RegisterAnonymous(key PublicKey, owner Party) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wellKnown[key] = owner
}

// WellKnownParty returns p when it is already well known, otherwise the owner of its key.
func (s *IdentityService) WellKnownParty(p Party) (Party, bool) {
	if !p.IsAnonymous() {
		return p, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.wellKnown[p.Key]
	return owner, ok
}

func (s *IdentityService) PartyFromName(name string) (Party, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byName[name]
	return p, ok
}

// Parties lists the well-known parties sorted by name.
func (s *IdentityService) Parties() []Party {
	s.mu.RLock()
	defer s.mu.RUnlock()
	parties := make([]Party, 0, len(s.byName))
	for _, p := range s.byName {
		parties = append(parties, p)
	}
	sort.Slice(parties, func(i, j int) bool { return parties[i].Name < parties[j].Name })
	return parties
}
