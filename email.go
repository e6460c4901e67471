package kenmon

import (
	"log"
	"strings"
)

// Email is an outbound message handed to the Mailer collaborator
type Email struct {
	From        string
	To          []string
	Subject     string
	TextContent string
	HTMLContent string
}

// Mailer interface allows applications to provide their own email delivery
type Mailer interface {
	SendEmail(email Email) error
}

// ConsoleMailer is a development implementation that logs emails to console
type ConsoleMailer struct{}

func (c *ConsoleMailer) SendEmail(email Email) error {
	log.Printf("\n=== EMAIL ===")
	log.Printf("From: %s", email.From)
	log.Printf("To: %s", strings.Join(email.To, ", "))
	log.Printf("Subject: %s", email.Subject)
	if email.TextContent != "" {
		log.Printf("Body: %s", email.TextContent)
	}
	log.Printf("=============\n")
	return nil
}
