package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"time"

	"github.com/pkg/errors"
)

// JWT algorithms (string values used in JWKs and headers)
const RS256 = "RS256"

// NamedKey is one member of the signing key set. The private material
// never leaves the process; only the public half is exportable.
type NamedKey struct {
	Kid        string
	PrivateKey *rsa.PrivateKey
	CreatedAt  time.Time
	RetiredAt  *time.Time // nil while the key is active
}

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kty string `json:"kty"`           // Key type (RSA)
	Use string `json:"use,omitempty"` // sig or enc
	Kid string `json:"kid,omitempty"` // Key ID
	Alg string `json:"alg,omitempty"` // Algorithm
	N   string `json:"n,omitempty"`   // Modulus
	E   string `json:"e,omitempty"`   // Exponent
}

// KeyID derives a deterministic identifier from the public key material,
// so independent verifiers can match a token's kid to a fetched public
// key without ambiguity.
func KeyID(publicKey *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", errors.Wrap(err, "[KeyID] marshal public key")
	}
	sum := sha256.Sum256(der)
	return base64.RawURLEncoding.EncodeToString(sum[:16]), nil
}

// generateNamedKey creates a fresh RSA key with a fingerprint-derived kid.
func generateNamedKey(bits int, createdAt time.Time) (*NamedKey, error) {
	if bits < 2048 {
		bits = 2048
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.Wrap(err, "[generateNamedKey] generate RSA key")
	}

	kid, err := KeyID(&privateKey.PublicKey)
	if err != nil {
		return nil, err
	}

	return &NamedKey{
		Kid:        kid,
		PrivateKey: privateKey,
		CreatedAt:  createdAt,
	}, nil
}

// ToJWK converts the key's public half to JWK format
func (k *NamedKey) ToJWK() JWK {
	publicKey := &k.PrivateKey.PublicKey
	return JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: k.Kid,
		Alg: RS256,
		N:   base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(publicKey.E)).Bytes()),
	}
}

// ExportPublicKeyPEM exports the public key as PEM
func (k *NamedKey) ExportPublicKeyPEM() (string, error) {
	pubKeyBytes, err := x509.MarshalPKIXPublicKey(&k.PrivateKey.PublicKey)
	if err != nil {
		return "", errors.Wrap(err, "[ExportPublicKeyPEM] marshal public key")
	}

	pubKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubKeyBytes,
	})

	return string(pubKeyPEM), nil
}

// ExportPrivateKeyPEM exports an RSA private key as PEM
func ExportPrivateKeyPEM(privateKey *rsa.PrivateKey) (string, error) {
	privateKeyBytes := x509.MarshalPKCS1PrivateKey(privateKey)
	privateKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: privateKeyBytes,
	})
	return string(privateKeyPEM), nil
}

// LoadRSAPrivateKeyFromPEM loads an RSA private key from PEM format
func LoadRSAPrivateKeyFromPEM(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("[LoadRSAPrivateKeyFromPEM] failed to decode PEM block")
	}

	if privKey, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return privKey, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "[LoadRSAPrivateKeyFromPEM] parse private key")
	}
	privKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("[LoadRSAPrivateKeyFromPEM] private key is not RSA")
	}
	return privKey, nil
}
