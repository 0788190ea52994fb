package broker

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/idna"

	brokererrors "github.com/emberlink/go-identity-broker/internal/errors"
)

// suffixRule is a single rule in the valid suffixes list.
type suffixRule struct {
	labels    []string // labels to match, some of which may be "*"
	exception bool
}

// DomainValidator validates email domains against an allow-list, a
// block-list, the set of known TLDs and public suffix rules. It also
// derives the registrable domain used to scope per-domain rate limits.
type DomainValidator struct {
	allowedDomains map[string]struct{}
	blockedDomains map[string]struct{}
	validTLDs      map[string]struct{}
	validSuffixes  []suffixRule

	// AllowedDomainsOnly treats anything not in the allow-list as blocked.
	AllowedDomainsOnly bool
}

// NewDomainValidator creates an empty validator. With no TLD or suffix
// data loaded, those checks are skipped and only the allow/block lists
// apply.
func NewDomainValidator() *DomainValidator {
	return &DomainValidator{
		allowedDomains: make(map[string]struct{}),
		blockedDomains: make(map[string]struct{}),
		validTLDs:      make(map[string]struct{}),
	}
}

// AddAllowedDomain adds a domain to the allow-list.
func (v *DomainValidator) AddAllowedDomain(domain string) error {
	ascii, err := idna.Lookup.ToASCII(strings.ToLower(domain))
	if err != nil {
		return errors.Wrap(err, "[AddAllowedDomain] idna")
	}
	v.allowedDomains[ascii] = struct{}{}
	return nil
}

// AddBlockedDomain adds a domain to the block-list.
func (v *DomainValidator) AddBlockedDomain(domain string) error {
	ascii, err := idna.Lookup.ToASCII(strings.ToLower(domain))
	if err != nil {
		return errors.Wrap(err, "[AddBlockedDomain] idna")
	}
	v.blockedDomains[ascii] = struct{}{}
	return nil
}

// AddValidTLD adds a TLD to the set of valid TLDs.
func (v *DomainValidator) AddValidTLD(tld string) error {
	ascii, err := idna.Lookup.ToASCII(strings.ToLower(tld))
	if err != nil {
		return errors.Wrap(err, "[AddValidTLD] idna")
	}
	v.validTLDs[ascii] = struct{}{}
	return nil
}

// AddValidSuffix adds one public-suffix rule. A leading "!" marks an
// exception rule; "*" labels match any single label.
func (v *DomainValidator) AddValidSuffix(rule string) error {
	exception := strings.HasPrefix(rule, "!")
	rule = strings.TrimPrefix(rule, "!")

	// Punycode each label separately so "*" survives conversion.
	labels := strings.Split(strings.ToLower(rule), ".")
	for i, label := range labels {
		if label == "" {
			return errors.New("[AddValidSuffix] rule contains empty labels")
		}
		if label == "*" {
			continue
		}
		ascii, err := idna.Lookup.ToASCII(label)
		if err != nil {
			return errors.Wrap(err, "[AddValidSuffix] idna")
		}
		labels[i] = ascii
	}

	v.validSuffixes = append(v.validSuffixes, suffixRule{labels: labels, exception: exception})
	return nil
}

// Validate checks a domain name. The allow-list short-circuits all other
// checks; otherwise the domain must not be blocked, must end in a known
// TLD (when a TLD list is loaded) and must sit below a valid public
// suffix (when suffix rules are loaded).
func (v *DomainValidator) Validate(domain string) error {
	domain, err := normalizeDomain(domain)
	if err != nil {
		return errors.Wrap(brokererrors.ErrDomainBlocked, err.Error())
	}

	if _, ok := v.allowedDomains[domain]; ok {
		return nil
	}
	if v.AllowedDomainsOnly {
		return brokererrors.ErrDomainBlocked
	}
	if _, ok := v.blockedDomains[domain]; ok {
		return brokererrors.ErrDomainBlocked
	}

	labels := strings.Split(domain, ".")
	for _, label := range labels {
		if label == "" {
			return brokererrors.ErrDomainBlocked
		}
	}

	if len(v.validTLDs) > 0 {
		if _, ok := v.validTLDs[labels[len(labels)-1]]; !ok {
			return brokererrors.ErrDomainBlocked
		}
	}
	if !v.validateSuffix(labels) {
		return brokererrors.ErrDomainBlocked
	}

	return nil
}

// RegistrableDomain returns the portion of the domain an organization
// actually controls: one label below the longest matching suffix rule,
// or the exception rule's own labels. Falls back to the last two labels
// when no rule matches. Returns the normalized input when it cannot be
// derived.
func (v *DomainValidator) RegistrableDomain(domain string) string {
	normalized, err := normalizeDomain(domain)
	if err != nil {
		return domain
	}
	labels := strings.Split(normalized, ".")

	matched := v.matchSuffix(labels)
	var keep int
	switch {
	case matched == nil:
		keep = 2
	case matched.exception:
		keep = len(matched.labels)
	default:
		keep = len(matched.labels) + 1
	}
	if keep > len(labels) {
		keep = len(labels)
	}
	return strings.Join(labels[len(labels)-keep:], ".")
}

// validateSuffix reports whether the domain sits at least one label below
// a matched suffix rule. An unmatched domain is treated as matching "*".
func (v *DomainValidator) validateSuffix(labels []string) bool {
	matched := v.matchSuffix(labels)
	if matched == nil {
		return len(labels) > 1
	}
	if matched.exception {
		return true
	}
	return len(labels) > len(matched.labels)
}

// matchSuffix returns the longest matching rule, with exception rules
// taking precedence.
func (v *DomainValidator) matchSuffix(labels []string) *suffixRule {
	var matched *suffixRule

	for i := range v.validSuffixes {
		rule := &v.validSuffixes[i]
		skip := len(labels) - len(rule.labels)
		if skip < 0 {
			continue
		}
		tail := labels[skip:]

		match := true
		for idx, label := range rule.labels {
			if label != "*" && tail[idx] != label {
				match = false
				break
			}
		}
		if !match {
			continue
		}

		if rule.exception {
			return rule
		}
		if matched == nil || len(rule.labels) > len(matched.labels) {
			matched = rule
		}
	}
	return matched
}

// NormalizeEmail lowercases and punycodes an email address, returning the
// normalized address and its domain part.
func NormalizeEmail(email string) (normalized, domain string, err error) {
	email = strings.TrimSpace(email)

	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", "", brokererrors.ErrInvalidEmail
	}

	local := strings.ToLower(email[:at])
	if strings.ContainsAny(local, " \t\r\n") {
		return "", "", brokererrors.ErrInvalidEmail
	}

	domain, err = normalizeDomain(email[at+1:])
	if err != nil {
		return "", "", brokererrors.ErrInvalidEmail
	}

	return local + "@" + domain, domain, nil
}

// ValidateRedirectURI checks the relying party redirect target and
// returns its origin, which becomes the token audience.
func ValidateRedirectURI(rawURI string) (origin string, err error) {
	rawURI = strings.TrimSpace(rawURI)
	if rawURI == "" {
		return "", brokererrors.ErrInvalidRedirectURI
	}

	parsed, err := url.Parse(rawURI)
	if err != nil {
		return "", brokererrors.ErrInvalidRedirectURI
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", brokererrors.ErrInvalidRedirectURI
	}
	if parsed.Host == "" || parsed.Fragment != "" {
		return "", brokererrors.ErrInvalidRedirectURI
	}

	return parsed.Scheme + "://" + parsed.Host, nil
}

func normalizeDomain(domain string) (string, error) {
	domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if domain == "" {
		return "", errors.New("empty domain")
	}
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return "", errors.Wrap(err, "idna")
	}
	return ascii, nil
}
