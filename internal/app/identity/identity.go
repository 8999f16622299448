/*
Package identity defines the verified identity attached to every live connection.

The relay never stores users itself: an external authority issues a signed token,
and the only identity fields the core consumes are the subject id, the role, and
the display name carried by that token.
*/
package identity

import "fmt"

// Role classifies a connection as a hub operator or a spoke end user.
// The values are wire values: they appear verbatim in the senderRole and
// typing_status.role fields of broadcast events.
type Role string

const (
	// RoleHub is an operator connection that can address any spoke user's conversation.
	RoleHub Role = "HUB"

	// RoleSpoke is an end-user connection with exactly one conversation of its own.
	RoleSpoke Role = "SPOKE"
)

// ParseRole validates a raw role claim from an identity token.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleHub:
		return RoleHub, nil
	case RoleSpoke:
		return RoleSpoke, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

// Identity is the result of verifying an identity token: the minimal set of
// fields the messaging core needs about a participant.
type Identity struct {
	// SubjectID is the unique user id the token was issued for.
	SubjectID string `json:"subjectId"`

	// Role decides room assignment and conversation addressing rules.
	Role Role `json:"role"`

	// DisplayName is the human-readable name shown to the other party.
	DisplayName string `json:"displayName"`
}

// Verifier validates a bearer token presented during connection admission.
// It is called exactly once per connection attempt, before any traffic is
// processed; a failure terminates the connection with no further interaction.
type Verifier interface {
	Verify(token string) (Identity, error)
}
