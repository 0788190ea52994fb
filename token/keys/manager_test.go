package keys_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/emberlink/go-identity-broker/token/keys"
)

func newTestManager(t *testing.T, now *time.Time, grace time.Duration) *keys.Manager {
	t.Helper()
	manager, err := keys.NewRotatingManager(time.Hour, grace,
		keys.WithNowTime(func() time.Time { return *now }),
		keys.WithKeyBits(2048),
	)
	require.NoError(t, err)
	return manager
}

func jwksKids(manager *keys.Manager) []string {
	set := manager.PublicKeySet()
	kids := make([]string, 0, len(set.Keys))
	for _, key := range set.Keys {
		kids = append(kids, key.Kid)
	}
	return kids
}

func TestExactlyOneActiveKey(t *testing.T) {
	now := time.Now()
	manager := newTestManager(t, &now, time.Hour)

	active, err := manager.ActiveSigningKey()
	require.NoError(t, err)
	require.NotEmpty(t, active.Kid)
	require.Nil(t, active.RetiredAt)

	require.NoError(t, manager.Rotate())

	rotated, err := manager.ActiveSigningKey()
	require.NoError(t, err)
	require.NotEqual(t, active.Kid, rotated.Kid)
}

func TestRotationContinuity(t *testing.T) {
	now := time.Now()
	manager := newTestManager(t, &now, time.Hour)

	before, err := manager.ActiveSigningKey()
	require.NoError(t, err)

	signed, err := manager.Sign(jwt.MapClaims{"sub": "user@example.com"})
	require.NoError(t, err)

	require.NoError(t, manager.Rotate())

	// The retired key is still in the public set, so the old token verifies.
	require.Contains(t, jwksKids(manager), before.Kid)
	parsed, err := jwt.Parse(signed, manager.VerificationKey)
	require.NoError(t, err)
	require.True(t, parsed.Valid)
}

func TestRetiredKeysPurgedAfterGraceWindow(t *testing.T) {
	now := time.Now()
	grace := time.Hour
	manager := newTestManager(t, &now, grace)

	first, err := manager.ActiveSigningKey()
	require.NoError(t, err)

	require.NoError(t, manager.Rotate())
	require.Contains(t, jwksKids(manager), first.Kid)

	// Past the grace window plus one more rotation, the key is gone.
	now = now.Add(grace + time.Minute)
	require.NoError(t, manager.Rotate())
	require.NotContains(t, jwksKids(manager), first.Kid)
}

func TestDeterministicKeyIDs(t *testing.T) {
	now := time.Now()
	manager := newTestManager(t, &now, time.Hour)

	active, err := manager.ActiveSigningKey()
	require.NoError(t, err)

	kid, err := keys.KeyID(&active.PrivateKey.PublicKey)
	require.NoError(t, err)
	require.Equal(t, active.Kid, kid)
}

func TestManualModeDisablesRotation(t *testing.T) {
	now := time.Now()
	rotating := newTestManager(t, &now, time.Hour)
	active, err := rotating.ActiveSigningKey()
	require.NoError(t, err)

	pemData, err := keys.ExportPrivateKeyPEM(active.PrivateKey)
	require.NoError(t, err)

	manual, err := keys.NewManualManager(pemData)
	require.NoError(t, err)

	manualActive, err := manual.ActiveSigningKey()
	require.NoError(t, err)
	require.Equal(t, active.Kid, manualActive.Kid)

	require.Error(t, manual.Rotate())
}

func TestManualModeRejectsBadKeyMaterial(t *testing.T) {
	_, err := keys.NewManualManager("not a pem block")
	require.Error(t, err)
}
