package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pagewatch/internal/config"
)

// Mailer delivers notifications over SMTP.
type Mailer struct {
	cfg  config.MailConfig
	send func(msg *email.Email, addr string, auth smtp.Auth) error
}

// NewMailer creates a Mailer from SMTP settings.
func NewMailer(cfg config.MailConfig) *Mailer {
	return &Mailer{
		cfg: cfg,
		send: func(msg *email.Email, addr string, auth smtp.Auth) error {
			return msg.Send(addr, auth)
		},
	}
}

func (m *Mailer) Notify(_ context.Context, n Notification) error {
	msg := email.NewEmail()
	msg.From = m.cfg.From
	msg.To = m.cfg.To
	msg.Subject = subject(n)
	msg.Text = []byte(renderBody(n))

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	err := m.send(msg, addr, smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		// Local relays without authentication.
		err = m.send(msg, addr, nil)
	}
	if err != nil {
		return eris.Wrapf(err, "notify: send mail for %s", n.SiteID)
	}
	return nil
}
