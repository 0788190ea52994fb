package broker_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emberlink/go-identity-broker/broker"
	brokererrors "github.com/emberlink/go-identity-broker/internal/errors"
)

func newTestValidator(t *testing.T) *broker.DomainValidator {
	t.Helper()

	v := broker.NewDomainValidator()
	for _, tld := range []string{"com", "org", "net", "uk", "jp", "example"} {
		require.NoError(t, v.AddValidTLD(tld))
	}
	for _, rule := range []string{
		"com",
		"org",
		"net",
		"uk",
		"co.uk",
		"*.jp",
		"*.kawasaki.jp",
		"!city.kawasaki.jp",
		"example",
	} {
		require.NoError(t, v.AddValidSuffix(rule))
	}
	return v
}

func TestValidateAcceptsOrdinaryDomains(t *testing.T) {
	v := newTestValidator(t)

	for _, domain := range []string{
		"example.com",
		"mail.example.com",
		"example.co.uk",
		"city.kawasaki.jp",
	} {
		require.NoError(t, v.Validate(domain), domain)
	}
}

func TestValidateRejectsBareSuffixes(t *testing.T) {
	v := newTestValidator(t)

	for _, domain := range []string{
		"com",
		"co.uk",
		"anything.jp",        // matches *.jp, nothing below the suffix
		"block.kawasaki.jp",  // matches *.kawasaki.jp
	} {
		require.ErrorIs(t, v.Validate(domain), brokererrors.ErrDomainBlocked, domain)
	}
}

func TestValidateRejectsUnknownTLD(t *testing.T) {
	v := newTestValidator(t)

	require.ErrorIs(t, v.Validate("example.invalid"), brokererrors.ErrDomainBlocked)
}

func TestValidateRejectsMalformedDomains(t *testing.T) {
	v := newTestValidator(t)

	for _, domain := range []string{"", ".", "example..com", ".example.com"} {
		require.ErrorIs(t, v.Validate(domain), brokererrors.ErrDomainBlocked, "%q", domain)
	}
}

func TestAllowListShortCircuits(t *testing.T) {
	v := newTestValidator(t)
	require.NoError(t, v.AddAllowedDomain("internal.invalid"))
	require.NoError(t, v.AddBlockedDomain("internal.invalid"))

	// Allowed wins even against the block-list and the TLD check.
	require.NoError(t, v.Validate("internal.invalid"))
}

func TestAllowedDomainsOnly(t *testing.T) {
	v := newTestValidator(t)
	v.AllowedDomainsOnly = true
	require.NoError(t, v.AddAllowedDomain("example.com"))

	require.NoError(t, v.Validate("example.com"))
	require.ErrorIs(t, v.Validate("example.org"), brokererrors.ErrDomainBlocked)
}

func TestBlockList(t *testing.T) {
	v := newTestValidator(t)
	require.NoError(t, v.AddBlockedDomain("disposable.example"))

	require.ErrorIs(t, v.Validate("disposable.example"), brokererrors.ErrDomainBlocked)
	require.NoError(t, v.Validate("other.example"))
}

func TestValidateNormalizesUnicode(t *testing.T) {
	v := newTestValidator(t)

	// bücher.example punycodes to xn--bcher-kva.example.
	require.NoError(t, v.Validate("BÜCHER.example"))
	require.NoError(t, v.Validate("xn--bcher-kva.example"))
}

func TestRegistrableDomain(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		domain string
		want   string
	}{
		{domain: "example.com", want: "example.com"},
		{domain: "a.b.example.com", want: "example.com"},
		{domain: "example.co.uk", want: "example.co.uk"},
		{domain: "www.example.co.uk", want: "example.co.uk"},
		{domain: "sub.any.jp", want: "sub.any.jp"},
		{domain: "deep.sub.any.jp", want: "sub.any.jp"},
		{domain: "city.kawasaki.jp", want: "city.kawasaki.jp"},
		{domain: "ward.city.kawasaki.jp", want: "city.kawasaki.jp"},
		// No matching rule falls back to the last two labels.
		{domain: "a.b.c.unknown", want: "c.unknown"},
	}

	for _, tc := range tests {
		require.Equal(t, tc.want, v.RegistrableDomain(tc.domain), tc.domain)
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		email      string
		want       string
		wantDomain string
		wantErr    bool
	}{
		{email: "Alice@Example.COM", want: "alice@example.com", wantDomain: "example.com"},
		{email: "  alice@example.com  ", want: "alice@example.com", wantDomain: "example.com"},
		{email: "alice@BÜCHER.example", want: "alice@xn--bcher-kva.example", wantDomain: "xn--bcher-kva.example"},
		{email: "no-at-sign", wantErr: true},
		{email: "@example.com", wantErr: true},
		{email: "alice@", wantErr: true},
		{email: "a lice@example.com", wantErr: true},
	}

	for _, tc := range tests {
		normalized, domain, err := broker.NormalizeEmail(tc.email)
		if tc.wantErr {
			require.ErrorIs(t, err, brokererrors.ErrInvalidEmail, tc.email)
			continue
		}
		require.NoError(t, err, tc.email)
		require.Equal(t, tc.want, normalized)
		require.Equal(t, tc.wantDomain, domain)
	}
}

func TestValidateRedirectURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantOrigin string
		wantErr    bool
	}{
		{uri: "https://rp.example.net/callback", wantOrigin: "https://rp.example.net"},
		{uri: "https://rp.example.net:8443/cb?a=b", wantOrigin: "https://rp.example.net:8443"},
		{uri: "http://localhost:8080/cb", wantOrigin: "http://localhost:8080"},
		{uri: "", wantErr: true},
		{uri: "ftp://rp.example.net/cb", wantErr: true},
		{uri: "https:///no-host", wantErr: true},
		{uri: "https://rp.example.net/cb#fragment", wantErr: true},
		{uri: "rp.example.net/cb", wantErr: true},
	}

	for _, tc := range tests {
		origin, err := broker.ValidateRedirectURI(tc.uri)
		if tc.wantErr {
			require.ErrorIs(t, err, brokererrors.ErrInvalidRedirectURI, tc.uri)
			continue
		}
		require.NoError(t, err, tc.uri)
		require.Equal(t, tc.wantOrigin, origin)
	}
}
