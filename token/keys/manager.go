package keys

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	brokererrors "github.com/emberlink/go-identity-broker/internal/errors"
)

// Manager owns the signing key set and its rotation schedule. Exactly one
// key is active at a time; retired keys stay verifiable for the grace
// period. Reads copy the active key reference under a read lock, so
// in-flight signing never observes a half-rotated set.
type Manager struct {
	mu               sync.RWMutex
	keys             []*NamedKey // keys[0] is the active key
	manual           bool
	rotationInterval time.Duration
	gracePeriod      time.Duration
	keyBits          int
	nowTime          func() time.Time
}

// ManagerOption modifies a Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithKeyBits sets the RSA modulus size. Small keys are only appropriate
// for tests.
func WithKeyBits(bits int) ManagerOption {
	return func(m *Manager) {
		m.keyBits = bits
	}
}

// NewRotatingManager creates a Manager that generates its own keys and
// replaces them every rotationInterval. Keys live only in memory; losing
// them on restart is acceptable because fresh ones are generated.
func NewRotatingManager(rotationInterval, gracePeriod time.Duration, options ...ManagerOption) (*Manager, error) {
	m := &Manager{
		rotationInterval: rotationInterval,
		gracePeriod:      gracePeriod,
		keyBits:          2048,
		nowTime:          time.Now,
	}
	for _, opt := range options {
		opt(m)
	}

	if err := m.Rotate(); err != nil {
		return nil, errors.Wrap(err, "[NewRotatingManager] initial rotation")
	}
	return m, nil
}

// NewManualManager creates a Manager holding a single externally-supplied
// key. Rotation is disabled; the operator owns the key lifecycle.
func NewManualManager(privateKeyPEM string, options ...ManagerOption) (*Manager, error) {
	privateKey, err := LoadRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, errors.Wrap(brokererrors.ErrKeyManagerFault, err.Error())
	}
	kid, err := KeyID(&privateKey.PublicKey)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		manual:  true,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	m.keys = []*NamedKey{{
		Kid:        kid,
		PrivateKey: privateKey,
		CreatedAt:  m.nowTime(),
	}}
	return m, nil
}

// ActiveSigningKey returns the key currently used to mint tokens.
func (m *Manager) ActiveSigningKey() (*NamedKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.keys) == 0 {
		return nil, brokererrors.ErrKeyManagerFault
	}
	return m.keys[0], nil
}

// PublicKeySet returns the public half of every non-purged key, for
// publication to relying parties verifying tokens independently.
func (m *Manager) PublicKeySet() JWKS {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jwks := JWKS{Keys: make([]JWK, 0, len(m.keys))}
	for _, key := range m.keys {
		jwks.Keys = append(jwks.Keys, key.ToJWK())
	}
	return jwks
}

// Rotate generates a new active key, demotes the previous one to retired
// and purges keys retired longer than the grace period. Serialized with
// respect to itself by the manager's lock.
func (m *Manager) Rotate() error {
	if m.manual {
		return errors.Wrap(brokererrors.ErrUnsupported, "rotation disabled in manual key mode")
	}

	now := m.nowTime()
	newKey, err := generateNamedKey(m.keyBits, now)
	if err != nil {
		return errors.Wrap(err, "[Manager.Rotate] generate key")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.keys) > 0 {
		retiredAt := now
		m.keys[0].RetiredAt = &retiredAt
	}

	keys := []*NamedKey{newKey}
	for _, key := range m.keys {
		if key.RetiredAt != nil && now.Sub(*key.RetiredAt) > m.gracePeriod {
			continue
		}
		keys = append(keys, key)
	}
	m.keys = keys
	return nil
}

// StartRotation runs the rotation timer until ctx is cancelled. A failed
// rotation is logged and the previous active key remains in use;
// availability is preferred over forced rotation.
func (m *Manager) StartRotation(ctx context.Context) {
	if m.manual {
		return
	}

	ticker := time.NewTicker(m.rotationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.Rotate(); err != nil {
				log.Error().Err(err).Msg("failed to rotate signing keys")
			}
		case <-ctx.Done():
			return
		}
	}
}
