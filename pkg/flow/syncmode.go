package flow

import (
	"strings"

	"github.com/partiture/partiture/pkg/ledger"
	"github.com/pkg/errors"
)

// IdentitySyncMode decides whether confidential identities are sent to
// counterparties before signatures are gathered.
type IdentitySyncMode int

const (
	// IdentitySyncNormal syncs only when one of our participants is anonymous.
	IdentitySyncNormal IdentitySyncMode = iota
	// IdentitySyncForce always syncs.
	IdentitySyncForce
	// IdentitySyncSkip never syncs.
	IdentitySyncSkip
)

func (m IdentitySyncMode) String() string {
	switch m {
	case IdentitySyncForce:
		return "FORCE"
	case IdentitySyncSkip:
		return "SKIP"
	default:
		return "NORMAL"
	}
}

func ParseIdentitySyncMode(s string) (IdentitySyncMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NORMAL":
		return IdentitySyncNormal, nil
	case "FORCE":
		return IdentitySyncForce, nil
	case "SKIP":
		return IdentitySyncSkip, nil
	}
	return IdentitySyncNormal, errors.Errorf("unknown identity sync mode %q", s)
}

func (m *IdentitySyncMode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseIdentitySyncMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m IdentitySyncMode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

// shouldSync applies the mode to the locally owned participants of an entry.
// Without open sessions there is nobody to sync with.
func (m IdentitySyncMode) shouldSync(ours []ledger.Party, sessions int) bool {
	if sessions == 0 {
		return false
	}
	switch m {
	case IdentitySyncForce:
		return true
	case IdentitySyncSkip:
		return false
	}
	for _, p := range ours {
		if p.IsAnonymous() {
			return true
		}
	}
	return false
}
