// Package mailer renders and delivers outreach emails.
package mailer

import "context"

// Message is a rendered email ready for a transport.
type Message struct {
	FromEmail string
	FromName  string
	ReplyTo   string
	To        string
	ToName    string
	Subject   string
	Text      string
	HTML      string
}

// Transport delivers a message and returns the provider's message id when it
// reports one. Implementations can be swapped (SendGrid, SES, stub) without
// changing callers.
type Transport interface {
	Deliver(ctx context.Context, msg Message) (string, error)
}
