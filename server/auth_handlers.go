package server

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/emberlink/go-identity-broker/broker"
	brokererrors "github.com/emberlink/go-identity-broker/internal/errors"
)

// StartAuthHandler begins an authentication attempt. The relying party
// submits the user's email via a form POST or an OIDC-style GET request;
// the broker either emails a one-time code or forwards the user to an
// upstream provider.
func (s *Server) StartAuthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		email := r.FormValue("login_hint")
		if email == "" {
			email = r.FormValue("email")
		}
		redirectURI := r.FormValue("redirect_uri")
		nonce := r.FormValue("nonce")
		responseMode := broker.ResponseModeType(r.FormValue("response_mode"))

		result, err := s.broker.StartAuthentication(r.Context(), email, redirectURI, nonce, responseMode)
		if err != nil {
			s.renderAuthError(w, r, err)
			return
		}

		if result.BridgeURL != "" {
			http.Redirect(w, r, result.BridgeURL, http.StatusSeeOther)
			return
		}

		s.renderCodeSentPage(w, result.SessionID)
	}
}

// ConfirmHandler completes an email authentication attempt. It accepts
// both the emailed link (GET with session and code) and the code entry
// form (POST).
func (s *Server) ConfirmHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		sessionID := r.FormValue("session")
		code := r.FormValue("code")
		if sessionID == "" {
			http.Error(w, "missing session", http.StatusBadRequest)
			return
		}
		if code == "" {
			// Link without a code: show the entry form for this session.
			s.renderConfirmPage(w, sessionID)
			return
		}

		result, err := s.broker.ConfirmAuthentication(r.Context(), sessionID, code)
		if err != nil {
			s.renderAuthError(w, r, err)
			return
		}

		s.deliverToken(w, r, result)
	}
}

// BridgeCallbackHandler completes an upstream OIDC bridge flow. The
// provider redirects back here with the broker session ID in state.
func (s *Server) BridgeCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if errCode := query.Get("error"); errCode != "" {
			log.Warn().Str("error", errCode).Msg("upstream provider returned an error")
			http.Error(w, "upstream provider rejected the request", http.StatusBadGateway)
			return
		}

		sessionID := query.Get("state")
		upstreamCode := query.Get("code")
		if sessionID == "" || upstreamCode == "" {
			http.Error(w, "missing state or code", http.StatusBadRequest)
			return
		}

		result, err := s.broker.ConfirmBridgeAuthentication(r.Context(), sessionID, upstreamCode)
		if err != nil {
			s.renderAuthError(w, r, err)
			return
		}

		s.deliverToken(w, r, result)
	}
}

// renderAuthError maps broker errors onto HTTP statuses. Internal detail
// stays in the logs; the response carries only a generic message.
func (s *Server) renderAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var message string

	switch {
	case brokererrors.Is(err, brokererrors.ErrRateLimited):
		status = http.StatusTooManyRequests
		message = "too many attempts, try again later"
	case brokererrors.Is(err, brokererrors.ErrSessionNotFound),
		brokererrors.Is(err, brokererrors.ErrCodeMismatch):
		// A missing session and a bad code must look identical to the
		// caller; the distinct sentinels exist only for the logs.
		status = http.StatusForbidden
		message = "authentication failed"
	case brokererrors.Is(err, brokererrors.ErrInvalidRequest):
		status = http.StatusBadRequest
		message = "invalid request"
	case brokererrors.Is(err, brokererrors.ErrMailDeliveryFailed):
		status = http.StatusServiceUnavailable
		message = "could not send the email, try again later"
	default:
		status = http.StatusInternalServerError
		message = "internal error"
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("authentication request failed")
	} else {
		log.Info().Err(err).Str("path", r.URL.Path).Msg("authentication request rejected")
	}

	http.Error(w, message, status)
}
