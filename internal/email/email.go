package email

import (
	"fmt"
	"net/smtp"
)

// Sender delivers registration captcha mail over plain SMTP.
type Sender struct {
	host string
	port int
	from string
	auth smtp.Auth
}

func NewSender(host string, port int, username, password, from string) *Sender {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &Sender{host: host, port: port, from: from, auth: auth}
}

// SendText sends a plain-text message to one recipient.
func (s *Sender) SendText(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	if err := smtp.SendMail(addr, s.auth, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}
