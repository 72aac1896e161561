package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const productName = "UpTimeDock"

type EmailMessage struct {
	Subject string
	Text    string
}

// EmailSender delivers alert mails.
type EmailSender interface {
	Send(ctx context.Context, to string, msg EmailMessage) error
}

// SendGridMailer sends through the SendGrid v3 API. It is a no-op until both
// the API key and the sender address are set.
type SendGridMailer struct {
	APIKey   string
	From     string
	FromName string
}

func (m *SendGridMailer) Send(ctx context.Context, to string, msg EmailMessage) error {
	if m.APIKey == "" || m.From == "" || to == "" {
		return nil
	}

	from := mail.NewEmail(m.FromName, m.From)
	recipient := mail.NewEmail("", to)
	message := mail.NewSingleEmail(from, msg.Subject, recipient, msg.Text, "")
	client := sendgrid.NewSendClient(m.APIKey)

	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid: status %d: %s", response.StatusCode, response.Body)
	}
	return nil
}

// AlertData is what the alert templates are rendered from.
type AlertData struct {
	FirstName  string
	MonitorID  string
	MonitorURL string
	StatusCode string
	Attempts   int
	ExpiryDays int
	ExpiryDate time.Time
	Time       time.Time
}

func ServiceDownEmail(d AlertData) EmailMessage {
	return EmailMessage{
		Subject: "Website Status Alert",
		Text: fmt.Sprintf(`Dear %s,

We regret to inform you that your website monitored by %s is currently down.

Monitor Id : %s
Service URL : %s
Status Code : %s
Time        : %s

After %d attempt(s), we were unable to connect to your service.

You'll be notified when the service is back online.

Thank you,
Team %s`,
			d.FirstName,
			productName,
			d.MonitorID,
			d.MonitorURL,
			d.StatusCode,
			d.Time.Format(time.RFC1123),
			d.Attempts,
			productName,
		),
	}
}

func SSLExpiryEmail(d AlertData) EmailMessage {
	return expiryEmail(d, "SSL Certificate", "The SSL certificate of your service", "certificate",
		"Please renew your SSL certificate immediately to restore secure connections.",
		"Please renew the certificate to avoid any security risks.")
}

func DomainExpiryEmail(d AlertData) EmailMessage {
	return expiryEmail(d, "Domain Name", "The Domain Name for your service", "domain",
		"Please renew your domain name immediately to restore service.",
		"Please renew your domain name to avoid any service disruption.")
}

func expiryEmail(d AlertData, title, subjectLine, noun, expiredAdvice, upcomingAdvice string) EmailMessage {
	expired := d.ExpiryDays <= 0

	subject := title + " Expiry approaching!"
	status := fmt.Sprintf("%s monitored by %s will expire in %d days.", subjectLine, productName, d.ExpiryDays)
	verb := "will expire"
	advice := upcomingAdvice
	if expired {
		subject = title + " has Expired!"
		days := -d.ExpiryDays
		status = fmt.Sprintf("%s monitored by %s has expired %d days ago.", subjectLine, productName, days)
		verb = "expired"
		advice = expiredAdvice
	}

	return EmailMessage{
		Subject: subject,
		Text: fmt.Sprintf(`Dear %s,
%s
The %s %s on %s (%s).
%s

Monitor Id : %s
Service URL : %s

Visit the incident tab on your %s profile for more.

Thank you,
Team %s`,
			d.FirstName,
			status,
			noun, verb, d.ExpiryDate.UTC().Format(time.RFC1123), humanize.RelTime(d.ExpiryDate, d.Time, "ago", "from now"),
			advice,
			d.MonitorID,
			d.MonitorURL,
			productName,
			productName,
		),
	}
}
