package core

import "net/mail"

type (
	// EmailMessage is a renderable email to one or more recipients.
	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		Subject     string
		TextContent string
		HTMLContent string
	}

	// EmailService is any service that can send emails.
	EmailService interface {
		SendMessages(messages ...*EmailMessage)
	}
)

func (em EmailMessage) HasRecipients() bool {
	return len(em.To) > 0 || len(em.Cc) > 0 || len(em.Bcc) > 0
}

func (em EmailMessage) HasContent() bool {
	return em.TextContent != "" || em.HTMLContent != ""
}
