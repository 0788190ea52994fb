package server

import (
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.AppName}}</title></head>
<body>
<h1>{{.AppName}}</h1>
<p>Sign in with your email address.</p>
<form method="post" action="/auth">
<input type="email" name="email" placeholder="you@example.com" required>
<input type="hidden" name="redirect_uri" value="">
<button type="submit">Continue</button>
</form>
</body>
</html>
`))

var codeSentTemplate = template.Must(template.New("code_sent").Parse(`<!DOCTYPE html>
<html>
<head><title>Check your email</title></head>
<body>
<h1>Check your email</h1>
<p>We sent you a code. Enter it below, or open the link in the email.</p>
<form method="post" action="/confirm">
<input type="hidden" name="session" value="{{.SessionID}}">
<input type="text" name="code" inputmode="numeric" autocomplete="one-time-code" required autofocus>
<button type="submit">Verify</button>
</form>
</body>
</html>
`))

var confirmTemplate = template.Must(template.New("confirm").Parse(`<!DOCTYPE html>
<html>
<head><title>Enter your code</title></head>
<body>
<h1>Enter your code</h1>
<form method="post" action="/confirm">
<input type="hidden" name="session" value="{{.SessionID}}">
<input type="text" name="code" inputmode="numeric" autocomplete="one-time-code" required autofocus>
<button type="submit">Verify</button>
</form>
</body>
</html>
`))

// IndexHandler serves a minimal landing page with an email form, mostly
// useful for manual testing. Relying parties POST to /auth directly.
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderPage(w, indexTemplate, map[string]string{"AppName": s.config.GetAppName()})
	}
}

func (s *Server) renderCodeSentPage(w http.ResponseWriter, sessionID string) {
	s.renderPage(w, codeSentTemplate, map[string]string{"SessionID": sessionID})
}

func (s *Server) renderConfirmPage(w http.ResponseWriter, sessionID string) {
	s.renderPage(w, confirmTemplate, map[string]string{"SessionID": sessionID})
}

func (s *Server) renderPage(w http.ResponseWriter, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := tmpl.Execute(w, data); err != nil {
		log.Error().Err(err).Str("template", tmpl.Name()).Msg("page render failed")
	}
}
