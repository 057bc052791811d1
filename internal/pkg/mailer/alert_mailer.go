package mailer

import (
	"fmt"
	"html"
	"time"

	"gopkg.in/gomail.v2"
)

// DeadLetterAlert describes a job the dispatcher gave up on.
type DeadLetterAlert struct {
	JobId      string
	Lane       string
	Error      string
	Attempts   int
	Permanent  bool
	OccurredAt time.Time
}

type IAlertMailer interface {
	SendDeadLetterAlert(alert DeadLetterAlert) error
}

type alertMailer struct {
	dialer     *gomail.Dialer
	sender     string
	recipients []string
}

func NewAlertMailer(host string, port int, username, password, sender string, recipients []string) IAlertMailer {
	return &alertMailer{
		dialer:     gomail.NewDialer(host, port, username, password),
		sender:     sender,
		recipients: recipients,
	}
}

func (s *alertMailer) SendDeadLetterAlert(alert DeadLetterAlert) error {
	m := buildDeadLetterMessage(s.sender, s.recipients, alert)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send dead letter alert for job %s: %w", alert.JobId, err)
	}
	return nil
}

func buildDeadLetterMessage(sender string, recipients []string, alert DeadLetterAlert) *gomail.Message {
	reason := "retries exhausted"
	if alert.Permanent {
		reason = "permanent failure"
	}

	m := gomail.NewMessage()
	m.SetHeader("From", sender)
	m.SetHeader("To", recipients...)
	m.SetHeader("Subject", fmt.Sprintf("[TabKeeper] %s job dead-lettered (%s)", alert.Lane, reason))

	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>Job moved to the dead-letter store</h2>
			<p><strong>Lane:</strong> %s</p>
			<p><strong>Job ID:</strong> %s</p>
			<p><strong>Attempts:</strong> %d</p>
			<p><strong>Time:</strong> %s</p>
			<p><strong>Last error:</strong></p>
			<pre style="background: #f4f4f4; padding: 10px;">%s</pre>
		</div>
	`,
		html.EscapeString(alert.Lane),
		html.EscapeString(alert.JobId),
		alert.Attempts,
		alert.OccurredAt.UTC().Format(time.RFC3339),
		html.EscapeString(alert.Error),
	)

	m.SetBody("text/html", body)
	return m
}
