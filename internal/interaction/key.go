// Package interaction defines the Interaction Key, the hard isolation
// boundary for all per-user-per-avatar conversational and affective state.
// Every store, bus payload, and conversation operation that touches
// user-specific state carries one.
package interaction

import "github.com/normanking/companioncore/internal/companionerr"

// Key identifies a single (user, avatar model) pairing. Neither half may be
// empty — unlike most identifiers in this codebase, a missing half is never
// defaulted or inferred, since doing so would leak one user's memories or
// bonding progress into another's session.
type Key struct {
	UserID  string
	ModelID string
}

// Validate returns a companionerr.InvalidKey error if either half is empty.
func (k Key) Validate() error {
	if k.UserID == "" || k.ModelID == "" {
		return companionerr.New(companionerr.InvalidKey, "interaction", nil)
	}
	return nil
}

func (k Key) String() string {
	return k.UserID + "/" + k.ModelID
}
