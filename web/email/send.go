package email

import (
	"fmt"
	"net/smtp"
	"os"

	"aptlink/logger"
)

func SendEmail(to string, subject string, body string) error {
	smtpServer := os.Getenv("SMTP_SERVER")
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")
	fromAddr := os.Getenv("FROM_ADDR")
	fromName := os.Getenv("FROM_NAME")

	if smtpServer == "" || smtpPort == "" || smtpUser == "" || smtpPass == "" || fromAddr == "" || fromName == "" {
		return fmt.Errorf("missing required SMTP environment variables")
	}

	msg := []byte(fmt.Sprintf("From: %s <%s>\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n\r\n"+
		"%s",
		fromName, fromAddr, to, subject, body))

	auth := smtp.PlainAuth("", smtpUser, smtpPass, smtpServer)

	err := smtp.SendMail(smtpServer+":"+smtpPort, auth, fromAddr, []string{to}, msg)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// SendPaymentLinkEmail tells a recipient that someone sent them a payment.
// Failures are logged, not returned; the link in the API response is the
// authoritative copy.
func SendPaymentLinkEmail(to string, paymentLink string, amount string, token string) {
	subject := fmt.Sprintf("You have received a %s %s payment", amount, token)
	body := fmt.Sprintf("Someone sent you %s %s.\n\nOpen the link below and sign in to claim it:\n\n%s\n\nUnclaimed payments are returned to the sender.", amount, token, paymentLink)

	if err := SendEmail(to, subject, body); err != nil {
		logger.L.Warn("failed to send payment link email", map[string]any{"error": err.Error()})
	}
}
