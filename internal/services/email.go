package services

import (
	"fmt"
	"net/smtp"
	"os"
)

// EmailService sends operational alert mail over plain SMTP. Partial
// reconciliations must reach a human, so this is wired into the reconciler.
type EmailService struct {
	host     string
	port     string
	user     string
	password string
	from     string
	opsAddr  string
}

func NewEmailService() *EmailService {
	return &EmailService{
		host:     os.Getenv("SMTP_HOST"),
		port:     os.Getenv("SMTP_PORT"),
		user:     os.Getenv("SMTP_USER"),
		password: os.Getenv("SMTP_PASS"),
		from:     os.Getenv("EMAIL_FROM"),
		opsAddr:  os.Getenv("OPS_ALERT_EMAIL"),
	}
}

func (s *EmailService) SendEmail(to []string, subject, body string) error {
	if s.host == "" || s.port == "" || s.user == "" || s.password == "" {
		return fmt.Errorf("SMTP credentials not fully configured")
	}

	auth := smtp.PlainAuth("", s.user, s.password, s.host)

	message := []byte(fmt.Sprintf("To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", to[0], subject, body))

	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	if err := smtp.SendMail(addr, auth, s.from, to, message); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// SendOpsAlert mails the configured operations address. Returns an error
// only for caller logging; alerting never fails a payment flow.
func (s *EmailService) SendOpsAlert(subject, body string) error {
	if s.opsAddr == "" {
		return fmt.Errorf("OPS_ALERT_EMAIL not configured")
	}
	return s.SendEmail([]string{s.opsAddr}, subject, body)
}
