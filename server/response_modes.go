package server

import (
	"html/template"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/emberlink/go-identity-broker/broker"
)

// formPostTemplate auto-submits the token to the relying party, matching
// the OAuth 2.0 form_post response mode.
var formPostTemplate = template.Must(template.New("form_post").Parse(`<!DOCTYPE html>
<html>
<head><title>Redirecting...</title></head>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.RedirectURI}}">
<input type="hidden" name="id_token" value="{{.IDToken}}">
<noscript><button type="submit">Continue</button></noscript>
</form>
</body>
</html>
`))

// deliverToken hands the identity token back to the relying party's
// redirect URI using the response mode chosen at the start of the flow.
func (s *Server) deliverToken(w http.ResponseWriter, r *http.Request, result *broker.ConfirmResult) {
	switch result.ResponseMode {
	case broker.FragmentResponseMode:
		fragment := url.Values{"id_token": {result.IDToken}}
		http.Redirect(w, r, result.RedirectURI+"#"+fragment.Encode(), http.StatusSeeOther)

	case broker.FormPostResponseMode:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		err := formPostTemplate.Execute(w, map[string]string{
			"RedirectURI": result.RedirectURI,
			"IDToken":     result.IDToken,
		})
		if err != nil {
			log.Error().Err(err).Msg("form_post render failed")
		}

	default: // query
		target, err := url.Parse(result.RedirectURI)
		if err != nil {
			// The URI was validated when the session was created.
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		query := target.Query()
		query.Set("id_token", result.IDToken)
		target.RawQuery = query.Encode()
		http.Redirect(w, r, target.String(), http.StatusSeeOther)
	}
}
