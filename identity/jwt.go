package identity

import (
	"context"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// JWTVerifier verifies identity-provider bearer tokens against a JWKS.
type JWTVerifier struct {
	keys     jwk.Set
	issuer   string
	audience string
}

// NewJWTVerifier loads the provider's key set from disk. Issuer and
// audience checks apply only when configured non-empty.
func NewJWTVerifier(jwksPath, issuer, audience string) (*JWTVerifier, error) {
	keys, err := jwk.ReadFile(jwksPath)
	if err != nil {
		return nil, fmt.Errorf("reading jwks from %s: %w", jwksPath, err)
	}

	return &JWTVerifier{keys: keys, issuer: issuer, audience: audience}, nil
}

// NewJWTVerifierFromSet builds a verifier over an in-memory key set.
func NewJWTVerifierFromSet(keys jwk.Set, issuer, audience string) *JWTVerifier {
	return &JWTVerifier{keys: keys, issuer: issuer, audience: audience}
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	opts := []jwt.ParseOption{
		jwt.WithContext(ctx),
		jwt.WithKeySet(v.keys, jws.WithInferAlgorithmFromKey(true)),
		jwt.WithValidate(true),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	tok, err := jwt.ParseString(token, opts...)
	if err != nil {
		return Identity{}, err
	}

	ident := Identity{Subject: tok.Subject()}
	if ident.Subject == "" {
		return Identity{}, fmt.Errorf("token has no subject")
	}

	if email, ok := tok.Get("email"); ok {
		if s, ok := email.(string); ok {
			ident.Email = s
		}
	}

	return ident, nil
}
