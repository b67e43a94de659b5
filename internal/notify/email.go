package notify

import (
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailSender delivers a single message to one recipient.
type EmailSender interface {
	Send(to, toName, subject, plainText, htmlContent string) error
}

// SendGridSender sends transactional mail through SendGrid.
type SendGridSender struct {
	apiKey    string
	fromEmail string
	fromName  string
}

func NewSendGridSender(apiKey, fromEmail, fromName string) *SendGridSender {
	return &SendGridSender{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *SendGridSender) Send(to, toName, subject, plainText, htmlContent string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	recipient := mail.NewEmail(toName, to)

	message := mail.NewSingleEmail(from, subject, recipient, plainText, htmlContent)

	client := sendgrid.NewSendClient(s.apiKey)
	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}
