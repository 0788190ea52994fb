package broker

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/pkg/errors"
)

// ResponseModeType denotes how the identity token is returned to the
// relying party's redirect URI.
type ResponseModeType string

const (
	// QueryResponseMode returns the token in the URL query string.
	QueryResponseMode ResponseModeType = "query"

	// FragmentResponseMode returns the token in the URL fragment (after #),
	// keeping it out of server logs on the RP side.
	FragmentResponseMode ResponseModeType = "fragment"

	// FormPostResponseMode returns the token via an auto-submitting HTML
	// form POST to the redirect URI.
	FormPostResponseMode ResponseModeType = "form_post"
)

// Bridge names for Session.Bridge.
const (
	emailBridge = "email"
	oidcBridge  = "oidc"
)

// Session is one in-flight authentication attempt. It is single-use: the
// verify operation reads and deletes it atomically, and it is never
// updated in place.
type Session struct {
	Email        string           `json:"email"`
	RedirectURI  string           `json:"redirect_uri"`
	Nonce        string           `json:"nonce,omitempty"`
	ResponseMode ResponseModeType `json:"response_mode"`
	Bridge       string           `json:"bridge"`
	CodeHash     []byte           `json:"code_hash,omitempty"`
	BridgeNonce  string           `json:"bridge_nonce,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	ExpiresAt    time.Time        `json:"expires_at"`
}

func (s *Session) encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "[Session.encode] marshal")
	}
	return data, nil
}

func decodeSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "[decodeSession] unmarshal")
	}
	return &s, nil
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

// newSessionID builds an unguessable session identifier by hashing the
// email address, the relying party origin and fresh randomness.
func newSessionID(email, rpOrigin string) (string, error) {
	randBytes := make([]byte, 16)
	if _, err := rand.Read(randBytes); err != nil {
		return "", errors.Wrap(err, "[newSessionID] rand.Read")
	}

	hasher := sha256.New()
	hasher.Write([]byte(email))
	hasher.Write([]byte(rpOrigin))
	hasher.Write(randBytes)
	return base64.RawURLEncoding.EncodeToString(hasher.Sum(nil)), nil
}

// newOneTimeCode generates a zero-padded numeric code of the given length.
func newOneTimeCode(length int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", errors.Wrap(err, "[newOneTimeCode] rand.Int")
	}
	return fmt.Sprintf("%0*d", length, n), nil
}
