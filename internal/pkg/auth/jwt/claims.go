package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the claims of the signed identity token the external auth
// service issues. The messaging core consumes only the subject id (standard
// "sub" claim), the role, and the display name.
type Payload struct {
	// StandardClaims embeds the JWT standard fields such as Sub (Subject),
	// Exp (Expiration), Iat (Issued At), and Iss (Issuer).
	jwt.StandardClaims

	// Role is the participant's role claim: "HUB" or "SPOKE".
	Role string `json:"role"`

	// DisplayName is the human-readable name shown to the other party.
	DisplayName string `json:"displayName"`
}
