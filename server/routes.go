package server

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET /{$}", ChainMiddleware(s.IndexHandler(), s.HTMLMiddleWare()...))

	// Authentication flow. GET /auth serves OIDC-style authorization
	// requests arriving as query parameters.
	s.RegisterRouteHandler("GET "+RouteAuth, ChainMiddleware(s.StartAuthHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteAuth, ChainMiddleware(s.StartAuthHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteConfirm, ChainMiddleware(s.ConfirmHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteConfirm, ChainMiddleware(s.ConfirmHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteCallback, ChainMiddleware(s.BridgeCallbackHandler(), s.HTMLMiddleWare()...))

	// Discovery endpoints, fetched cross-origin by relying parties
	s.RegisterRouteHandler("GET "+RouteWellKnownOpenIDConfig, ChainMiddleware(s.WellKnownOpenIDConfigHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKSHandler(), s.APIMiddleware()...))
}
