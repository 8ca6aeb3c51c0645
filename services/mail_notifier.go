package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"

	"github.com/Dosada05/event-registration/repositories"
	"github.com/Dosada05/event-registration/utils"
)

type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`<html><body>
<p>Your registration for <b>{{.EventName}}</b> is confirmed.</p>
<p>Ticket: <code>{{.TicketID}}</code></p>
{{if .PassURL}}<p><a href="{{.PassURL}}">Download your pass</a></p>{{end}}
</body></html>`))

// MailNotifier sends a confirmation mail when the participant id is an email
// address. Other participants are skipped silently.
type MailNotifier struct {
	cfg    SMTPConfig
	store  repositories.Reader
	logger *slog.Logger
	send   func(to []string, subject, body string) error
}

func NewMailNotifier(cfg SMTPConfig, store repositories.Reader, logger *slog.Logger) *MailNotifier {
	n := &MailNotifier{cfg: cfg, store: store, logger: logger}
	n.send = n.sendSMTP
	return n
}

func (n *MailNotifier) NotifyRegistrationComplete(ctx context.Context, participantID, eventID, ticketID string) error {
	if !utils.IsValidEmail(participantID) {
		return nil
	}
	ev, err := n.store.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load event for confirmation mail: %w", err)
	}
	passURL := ""
	if t, err := n.store.GetTicket(ctx, ticketID); err == nil {
		passURL = t.PassURL
	}

	var body bytes.Buffer
	data := struct {
		EventName string
		TicketID  string
		PassURL   string
	}{EventName: ev.Name, TicketID: ticketID, PassURL: passURL}
	if err := confirmationTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("render confirmation mail: %w", err)
	}

	subject := fmt.Sprintf("Registration confirmed: %s", ev.Name)
	if err := n.send([]string{participantID}, subject, body.String()); err != nil {
		return fmt.Errorf("send confirmation mail: %w", err)
	}
	n.logger.InfoContext(ctx, "confirmation mail sent", "event_id", eventID, "ticket_id", ticketID)
	return nil
}

func (n *MailNotifier) sendSMTP(to []string, subject, body string) error {
	msg := []byte("To: " + to[0] + "\r\n" +
		"From: " + n.cfg.From + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-version: 1.0;\r\nContent-Type: text/html; charset=\"UTF-8\";\r\n" +
		"\r\n" +
		body + "\r\n")

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	tlsConfig := &tls.Config{ServerName: n.cfg.Host}

	var client *smtp.Client
	if n.cfg.Port == 465 {
		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return fmt.Errorf("tls dial: %w", err)
		}
		client, err = smtp.NewClient(conn, n.cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("create smtp client: %w", err)
		}
	} else {
		c, err := smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("smtp dial: %w", err)
		}
		client = c
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return fmt.Errorf("starttls: %w", err)
		}
	}
	defer client.Quit()

	if n.cfg.User != "" {
		if err := client.Auth(smtp.PlainAuth("", n.cfg.User, n.cfg.Pass, n.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return w.Close()
}
