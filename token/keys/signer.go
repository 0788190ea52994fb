package keys

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer is an interface for signing JWT tokens and resolving the key
// used to verify them.
type Signer interface {
	// Sign creates a signed JWT token from claims
	Sign(claims jwt.MapClaims) (string, error)

	// VerificationKey resolves the public key for a parsed token's kid,
	// suitable as a jwt.Keyfunc
	VerificationKey(token *jwt.Token) (any, error)
}

var _ Signer = (*Manager)(nil)

// Sign mints a token with the active key. The kid header names the key so
// verifiers can pick the matching JWK from the published set.
func (m *Manager) Sign(claims jwt.MapClaims) (string, error) {
	active, err := m.ActiveSigningKey()
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = active.Kid

	signedToken, err := token.SignedString(active.PrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.Sign] failed to sign token")
	}
	return signedToken, nil
}

// VerificationKey returns the public key matching the token's kid header.
// Retired keys resolve until their grace period lapses, so tokens signed
// just before a rotation stay valid.
func (m *Manager) VerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("token has no kid header")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, key := range m.keys {
		if key.Kid == kid {
			return &key.PrivateKey.PublicKey, nil
		}
	}
	return nil, errors.Errorf("no key found for kid %q", kid)
}
