package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Authentication flow
	RouteAuth     = "/auth"
	RouteConfirm  = "/confirm"
	RouteCallback = "/callback"

	// Discovery
	RouteWellKnownOpenIDConfig = "/.well-known/openid-configuration"
	RouteWellKnownJWKS         = "/.well-known/jwks.json"
)
