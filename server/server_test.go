package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/emberlink/go-identity-broker/broker"
	"github.com/emberlink/go-identity-broker/internal/config"
	"github.com/emberlink/go-identity-broker/ratelimit"
	"github.com/emberlink/go-identity-broker/server"
	"github.com/emberlink/go-identity-broker/storage/memory"
	"github.com/emberlink/go-identity-broker/token"
	"github.com/emberlink/go-identity-broker/token/keys"
)

type captureMailer struct {
	mu       sync.Mutex
	lastCode string
	lastLink string
}

func (m *captureMailer) Deliver(_ context.Context, _, code, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCode = code
	m.lastLink = link
	return nil
}

type serverFixture struct {
	server  *server.Server
	manager *keys.Manager
	mailer  *captureMailer
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	t.Setenv("APP_NAME", "identity-broker-test")
	t.Setenv("BASE_URL", "https://broker.example.com")
	cfg := config.New()

	store := memory.New(time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	manager, err := keys.NewRotatingManager(time.Hour, time.Hour, keys.WithKeyBits(1024))
	require.NoError(t, err)

	mailer := &captureMailer{}

	service, err := broker.NewService(broker.Deps{
		Store:     store,
		Limiter:   ratelimit.New(store),
		Minter:    token.NewMinter("https://broker.example.com", manager),
		Mailer:    mailer,
		Validator: broker.NewDomainValidator(),
	}, "https://broker.example.com")
	require.NoError(t, err)

	srv, err := server.New(cfg, service, manager)
	require.NoError(t, err)

	return &serverFixture{server: srv, manager: manager, mailer: mailer}
}

func (f *serverFixture) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (f *serverFixture) startAuth(t *testing.T, responseMode string) string {
	t.Helper()
	form := url.Values{
		"email":        {"alice@example.com"},
		"redirect_uri": {"https://rp.example.net/cb"},
		"nonce":        {"n-1"},
	}
	if responseMode != "" {
		form.Set("response_mode", responseMode)
	}
	rec := f.postForm(t, "/auth", form)
	require.Equal(t, http.StatusOK, rec.Code)

	// The emailed link carries the session ID.
	link, err := url.Parse(f.mailer.lastLink)
	require.NoError(t, err)
	sessionID := link.Query().Get("session")
	require.NotEmpty(t, sessionID)
	return sessionID
}

func TestAuthFlowQueryResponseMode(t *testing.T) {
	f := newServerFixture(t)
	sessionID := f.startAuth(t, "query")

	rec := f.postForm(t, "/confirm", url.Values{
		"session": {sessionID},
		"code":    {f.mailer.lastCode},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "rp.example.net", location.Host)
	idToken := location.Query().Get("id_token")
	require.NotEmpty(t, idToken)

	parsed, err := jwt.Parse(idToken, f.manager.VerificationKey, jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	require.Equal(t, "alice@example.com", claims["email"])
	require.Equal(t, "https://rp.example.net", claims["aud"])
	require.Equal(t, "n-1", claims["nonce"])
}

func TestAuthFlowConfirmViaEmailedLink(t *testing.T) {
	f := newServerFixture(t)
	f.startAuth(t, "query")

	link, err := url.Parse(f.mailer.lastLink)
	require.NoError(t, err)

	rec := f.get(t, link.RequestURI())
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Contains(t, rec.Header().Get("Location"), "id_token=")
}

func TestAuthFlowFragmentResponseMode(t *testing.T) {
	f := newServerFixture(t)
	sessionID := f.startAuth(t, "fragment")

	rec := f.postForm(t, "/confirm", url.Values{
		"session": {sessionID},
		"code":    {f.mailer.lastCode},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	location := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "https://rp.example.net/cb#id_token="))
}

func TestAuthFlowFormPostResponseMode(t *testing.T) {
	f := newServerFixture(t)
	sessionID := f.startAuth(t, "form_post")

	rec := f.postForm(t, "/confirm", url.Values{
		"session": {sessionID},
		"code":    {f.mailer.lastCode},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	body := rec.Body.String()
	require.Contains(t, body, `action="https://rp.example.net/cb"`)
	require.Contains(t, body, `name="id_token"`)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestConfirmWithoutCodeShowsEntryForm(t *testing.T) {
	f := newServerFixture(t)
	sessionID := f.startAuth(t, "query")

	rec := f.get(t, "/confirm?session="+url.QueryEscape(sessionID))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `name="code"`)

	// The form was only rendered, not submitted; the session is intact.
	rec = f.postForm(t, "/confirm", url.Values{
		"session": {sessionID},
		"code":    {f.mailer.lastCode},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestConfirmFailuresAreIndistinguishable(t *testing.T) {
	f := newServerFixture(t)
	sessionID := f.startAuth(t, "query")

	wrong := "000000"
	if f.mailer.lastCode == wrong {
		wrong = "000001"
	}
	wrongCode := f.postForm(t, "/confirm", url.Values{
		"session": {sessionID},
		"code":    {wrong},
	})
	unknownSession := f.postForm(t, "/confirm", url.Values{
		"session": {"does-not-exist"},
		"code":    {"123456"},
	})

	// A bad code and a missing session must produce identical responses,
	// so a caller cannot probe which one it hit.
	require.Equal(t, http.StatusForbidden, wrongCode.Code)
	require.Equal(t, wrongCode.Code, unknownSession.Code)
	require.Equal(t, wrongCode.Body.String(), unknownSession.Body.String())
	require.Contains(t, wrongCode.Body.String(), "authentication failed")
}

func TestStartAuthViaGetQueryParams(t *testing.T) {
	f := newServerFixture(t)

	params := url.Values{
		"login_hint":   {"alice@example.com"},
		"redirect_uri": {"https://rp.example.net/cb"},
	}
	rec := f.get(t, "/auth?"+params.Encode())
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, f.mailer.lastCode)
}

func TestStartAuthRejectsInvalidEmail(t *testing.T) {
	f := newServerFixture(t)

	rec := f.postForm(t, "/auth", url.Values{
		"email":        {"not-an-email"},
		"redirect_uri": {"https://rp.example.net/cb"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWellKnownOpenIDConfiguration(t *testing.T) {
	f := newServerFixture(t)

	rec := f.get(t, "/.well-known/openid-configuration")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Equal(t, "https://broker.example.com", doc["issuer"])
	require.Equal(t, "https://broker.example.com/auth", doc["authorization_endpoint"])
	require.Equal(t, "https://broker.example.com/.well-known/jwks.json", doc["jwks_uri"])
	require.Contains(t, doc["response_modes_supported"], "form_post")
}

func TestWellKnownJWKS(t *testing.T) {
	f := newServerFixture(t)

	rec := f.get(t, "/.well-known/jwks.json")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var jwks keys.JWKS
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jwks))
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "RSA", jwks.Keys[0].Kty)
	require.Equal(t, "RS256", jwks.Keys[0].Alg)
	require.NotEmpty(t, jwks.Keys[0].Kid)
	require.NotEmpty(t, jwks.Keys[0].N)
}

func TestIndexPage(t *testing.T) {
	f := newServerFixture(t)

	rec := f.get(t, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "identity-broker-test")
	require.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
}
