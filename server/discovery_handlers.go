package server

import (
	"encoding/json"
	"net/http"
)

// WellKnownOpenIDConfigHandler serves the OIDC discovery document
func (s *Server) WellKnownOpenIDConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"issuer":                 s.baseURL,
			"authorization_endpoint": s.baseURL + RouteAuth,
			"jwks_uri":               s.baseURL + RouteWellKnownJWKS,

			// The broker only ever returns an id_token, never a code
			"response_types_supported": []string{"id_token"},
			"response_modes_supported": []string{"query", "fragment", "form_post"},
			"subject_types_supported":  []string{"public"},

			// Signing algorithms
			"id_token_signing_alg_values_supported": []string{"RS256"},

			"scopes_supported": []string{"openid", "email"},

			"claims_supported": []string{
				"iss",
				"sub",
				"aud",
				"email",
				"email_verified",
				"nonce",
				"iat",
				"exp",
			},
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// JWKSHandler returns the JSON Web Key Set used to validate tokens
func (s *Server) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks := s.keys.PublicKeySet()

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		_ = json.NewEncoder(w).Encode(jwks)
	}
}
