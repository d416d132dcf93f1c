// Package identity maps an already-validated JWT's claims onto the
// subject a check request acts as. It does not authenticate callers: an
// external identity provider issues and signs the tokens, and whatever
// transport sits in front of the engine is responsible for verifying the
// signature before handing claims here.
package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/relguard/rebac/pkg/model"
)

// Claims is the subset of a validated access token the engine needs to
// resolve the caller into a model.Subject.
type Claims struct {
	jwt.RegisteredClaims
	SubjectType string `json:"subject_type,omitempty"`
}

// defaultSubjectType is used when a token carries no subject_type claim,
// matching tokens issued by identity providers that only know about users.
const defaultSubjectType = "user"

// SubjectFromClaims resolves a subject from already-validated claims. It
// returns an error if the claims carry no subject (the "sub" claim is
// empty).
func SubjectFromClaims(c *Claims) (model.Subject, error) {
	if c == nil || c.Subject == "" {
		return model.Subject{}, fmt.Errorf("identity: claims carry no subject")
	}
	subjectType := c.SubjectType
	if subjectType == "" {
		subjectType = defaultSubjectType
	}
	return model.Subject{Type: subjectType, ID: c.Subject}, nil
}

// SubjectFromJWT parses an already-verified JWT's claims and resolves a
// subject. Callers must verify the token's signature (and any
// issuer/audience/expiry checks their identity provider requires) before
// calling this — ParseUnverified intentionally skips signature
// verification because that responsibility belongs to whatever middleware
// terminates the caller's session, not to the decision engine.
func SubjectFromJWT(tokenString string) (model.Subject, error) {
	parser := jwt.NewParser()
	var claims Claims
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return model.Subject{}, fmt.Errorf("identity: parse token: %w", err)
	}
	return SubjectFromClaims(&claims)
}
