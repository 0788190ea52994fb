// Package broker implements the authentication protocol state machine:
// request validation, one-time-code issuance, confirmation and identity
// token minting.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/emberlink/go-identity-broker/bridges/oidc"
	brokererrors "github.com/emberlink/go-identity-broker/internal/errors"
	"github.com/emberlink/go-identity-broker/mail"
	"github.com/emberlink/go-identity-broker/ratelimit"
	"github.com/emberlink/go-identity-broker/storage"
	"github.com/emberlink/go-identity-broker/token"
)

// RateLimit is a count-per-window quota applied by the broker.
type RateLimit struct {
	Limit  int64
	Window time.Duration
}

// Deps holds all collaborator dependencies for the Service.
type Deps struct {
	Store     storage.Store    // Session and counter storage
	Limiter   *ratelimit.Limiter
	Minter    *token.Minter    // Identity token construction
	Mailer    mail.Mailer      // One-time code delivery
	Validator *DomainValidator // Email domain policy
}

// Service orchestrates the authentication flow. Each attempt moves
// Requested -> AwaitingConfirmation -> Confirmed, or fails terminally on
// validation, rate limiting, expiry or a bad code.
type Service struct {
	deps        Deps
	bridges     map[string]*oidc.Bridge // registrable domain -> upstream provider
	baseURL     string
	sessionTTL  time.Duration
	codeLength  int
	emailLimit  RateLimit
	domainLimit RateLimit
	nowTime     func() time.Time // nowTime function (injectable for testing)
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithSessionTTL bounds how long an unconfirmed session lives.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.sessionTTL = ttl
	}
}

// WithCodeLength sets the one-time code length in digits.
func WithCodeLength(length int) ServiceOption {
	return func(s *Service) {
		s.codeLength = length
	}
}

// WithRateLimits sets the per-email and per-registrable-domain quotas.
func WithRateLimits(email, domain RateLimit) ServiceOption {
	return func(s *Service) {
		s.emailLimit = email
		s.domainLimit = domain
	}
}

// WithBridges registers upstream OIDC providers keyed by registrable domain.
func WithBridges(bridges map[string]*oidc.Bridge) ServiceOption {
	return func(s *Service) {
		s.bridges = bridges
	}
}

// NewService initializes a new Service with required dependencies.
// baseURL is the broker's public base URL, used in confirmation links.
func NewService(deps Deps, baseURL string, options ...ServiceOption) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("[NewService] Store is required")
	}
	if deps.Limiter == nil {
		return nil, errors.New("[NewService] Limiter is required")
	}
	if deps.Minter == nil {
		return nil, errors.New("[NewService] Minter is required")
	}
	if deps.Mailer == nil {
		return nil, errors.New("[NewService] Mailer is required")
	}
	if deps.Validator == nil {
		return nil, errors.New("[NewService] Validator is required")
	}

	s := &Service{
		deps:        deps,
		baseURL:     baseURL,
		sessionTTL:  15 * time.Minute,
		codeLength:  6,
		emailLimit:  RateLimit{Limit: 5, Window: time.Minute},
		domainLimit: RateLimit{Limit: 50, Window: time.Minute},
		nowTime:     time.Now,
	}

	for _, opt := range options {
		opt(s)
	}

	return s, nil
}

// StartResult is returned by StartAuthentication. When BridgeURL is set
// the caller must redirect the user to the upstream provider instead of
// waiting for a one-time code.
type StartResult struct {
	SessionID string
	BridgeURL string
}

// ConfirmResult carries everything the caller needs to hand the token
// back to the relying party.
type ConfirmResult struct {
	IDToken      string
	Email        string
	RedirectURI  string
	ResponseMode ResponseModeType
}

// StartAuthentication validates the request, charges the rate limiter,
// creates a session and dispatches a one-time code (or hands off to an
// upstream OIDC bridge). Validation failures happen before any side
// effect.
func (s *Service) StartAuthentication(ctx context.Context, email, redirectURI, nonce string, responseMode ResponseModeType) (*StartResult, error) {
	email, domain, err := NormalizeEmail(email)
	if err != nil {
		return nil, errors.Wrap(brokererrors.ErrInvalidRequest, err.Error())
	}

	rpOrigin, err := ValidateRedirectURI(redirectURI)
	if err != nil {
		return nil, errors.Wrap(brokererrors.ErrInvalidRequest, err.Error())
	}

	if err := s.deps.Validator.Validate(domain); err != nil {
		return nil, errors.Wrap(brokererrors.ErrInvalidRequest, err.Error())
	}

	if responseMode == "" {
		responseMode = QueryResponseMode
	}
	switch responseMode {
	case QueryResponseMode, FragmentResponseMode, FormPostResponseMode:
	default:
		return nil, errors.Wrap(brokererrors.ErrInvalidRequest, "unsupported response_mode")
	}

	registrable := s.deps.Validator.RegistrableDomain(domain)
	if err := s.deps.Limiter.CheckAndConsume(ctx, email, s.emailLimit.Limit, s.emailLimit.Window); err != nil {
		return nil, errors.Wrap(err, "[StartAuthentication] email rate limit")
	}
	if err := s.deps.Limiter.CheckAndConsume(ctx, registrable, s.domainLimit.Limit, s.domainLimit.Window); err != nil {
		return nil, errors.Wrap(err, "[StartAuthentication] domain rate limit")
	}

	sessionID, err := newSessionID(email, rpOrigin)
	if err != nil {
		return nil, err
	}

	if bridge, ok := s.bridges[registrable]; ok {
		return s.startBridgeAuthentication(ctx, bridge, sessionID, email, redirectURI, nonce, responseMode)
	}

	code, err := newOneTimeCode(s.codeLength)
	if err != nil {
		return nil, err
	}
	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "[StartAuthentication] hash code")
	}

	now := s.nowTime()
	session := &Session{
		Email:        email,
		RedirectURI:  redirectURI,
		Nonce:        nonce,
		ResponseMode: responseMode,
		Bridge:       emailBridge,
		CodeHash:     codeHash,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.sessionTTL),
	}
	if err := s.putSession(ctx, sessionID, session); err != nil {
		return nil, err
	}

	link := fmt.Sprintf("%s/confirm?session=%s&code=%s", s.baseURL, sessionID, code)
	if err := s.deps.Mailer.Deliver(ctx, email, code, link); err != nil {
		// The user will never see the link; drop the session rather than
		// leave a confirmable orphan behind.
		_, _ = s.deps.Store.Take(ctx, sessionKey(sessionID))
		return nil, errors.Wrap(err, "[StartAuthentication] Deliver")
	}

	log.Info().Str("domain", domain).Msg("authentication started")
	return &StartResult{SessionID: sessionID}, nil
}

// ConfirmAuthentication atomically consumes the session and, when the
// submitted code matches, mints the identity token. Concurrent duplicate
// submissions race for the single Take; losers see ErrSessionNotFound.
func (s *Service) ConfirmAuthentication(ctx context.Context, sessionID, submittedCode string) (*ConfirmResult, error) {
	session, err := s.takeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Bridge != emailBridge {
		return nil, brokererrors.ErrSessionNotFound
	}

	// bcrypt comparison is constant-time, so a mismatch leaks no timing
	// information about the stored code.
	if err := bcrypt.CompareHashAndPassword(session.CodeHash, []byte(submittedCode)); err != nil {
		return nil, brokererrors.ErrCodeMismatch
	}

	return s.completeAuthentication(session)
}

// ConfirmBridgeAuthentication finishes an upstream OIDC bridge flow. The
// state parameter round-tripped through the provider is the session ID.
func (s *Service) ConfirmBridgeAuthentication(ctx context.Context, sessionID, upstreamCode string) (*ConfirmResult, error) {
	session, err := s.takeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Bridge != oidcBridge {
		return nil, brokererrors.ErrSessionNotFound
	}

	registrable := s.deps.Validator.RegistrableDomain(domainOf(session.Email))
	bridge, ok := s.bridges[registrable]
	if !ok {
		return nil, brokererrors.ErrSessionNotFound
	}

	email, err := bridge.VerifyCallback(ctx, upstreamCode, session.BridgeNonce)
	if err != nil {
		return nil, errors.Wrap(brokererrors.ErrCodeMismatch, err.Error())
	}
	if email != session.Email {
		return nil, brokererrors.ErrCodeMismatch
	}

	return s.completeAuthentication(session)
}

func (s *Service) startBridgeAuthentication(ctx context.Context, bridge *oidc.Bridge, sessionID, email, redirectURI, nonce string, responseMode ResponseModeType) (*StartResult, error) {
	bridgeNonce, err := newSessionID(email, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.nowTime()
	session := &Session{
		Email:        email,
		RedirectURI:  redirectURI,
		Nonce:        nonce,
		ResponseMode: responseMode,
		Bridge:       oidcBridge,
		BridgeNonce:  bridgeNonce,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.sessionTTL),
	}
	if err := s.putSession(ctx, sessionID, session); err != nil {
		return nil, err
	}

	return &StartResult{
		SessionID: sessionID,
		BridgeURL: bridge.AuthURL(sessionID, bridgeNonce, email),
	}, nil
}

func (s *Service) completeAuthentication(session *Session) (*ConfirmResult, error) {
	// The audience is the relying party origin, already validated at start.
	rpOrigin, err := ValidateRedirectURI(session.RedirectURI)
	if err != nil {
		return nil, errors.Wrap(brokererrors.ErrInternal, err.Error())
	}

	idToken, err := s.deps.Minter.MintIdentityToken(session.Email, rpOrigin, session.Nonce)
	if err != nil {
		return nil, errors.Wrap(err, "[completeAuthentication] MintIdentityToken")
	}

	return &ConfirmResult{
		IDToken:      idToken,
		Email:        session.Email,
		RedirectURI:  session.RedirectURI,
		ResponseMode: session.ResponseMode,
	}, nil
}

func (s *Service) putSession(ctx context.Context, sessionID string, session *Session) error {
	data, err := session.encode()
	if err != nil {
		return err
	}
	if err := s.deps.Store.Put(ctx, sessionKey(sessionID), data, s.sessionTTL); err != nil {
		return errors.Wrap(brokererrors.ErrStorageUnavailable, err.Error())
	}
	return nil
}

func (s *Service) takeSession(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.deps.Store.Take(ctx, sessionKey(sessionID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, brokererrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(brokererrors.ErrStorageUnavailable, err.Error())
	}

	session, err := decodeSession(data)
	if err != nil {
		return nil, errors.Wrap(brokererrors.ErrInternal, err.Error())
	}

	// Expired-but-not-yet-collected sessions behave exactly like absent ones.
	if s.nowTime().After(session.ExpiresAt) {
		return nil, brokererrors.ErrSessionNotFound
	}
	return session, nil
}

func domainOf(email string) string {
	at := len(email) - 1
	for ; at >= 0; at-- {
		if email[at] == '@' {
			break
		}
	}
	if at < 0 {
		return email
	}
	return email[at+1:]
}
