// Package mail is the seam at which the outbound mail transport attaches.
// The broker only knows how to ask for a one-time code to be delivered;
// transport details stay behind the Mailer interface.
package mail

import "context"

// Mailer delivers a one-time code to the address being authenticated.
// The call is awaited so delivery failures propagate: the user must not
// be told a code was sent when it was not.
type Mailer interface {
	Deliver(ctx context.Context, recipient, code, link string) error
}
