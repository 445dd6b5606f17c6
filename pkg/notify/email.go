package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/YoungLulu/auto-digest/pkg/report"
)

// ErrNoRecipients is returned when an email notifier has nobody to send to.
var ErrNoRecipients = errors.New("no email recipients configured")

// EmailConfig configures SMTP delivery.
type EmailConfig struct {
	Host            string
	Port            int
	Username        string
	Password        string
	From            string
	To              []string
	UseTLS          bool
	SendAttachments bool
	Timeout         time.Duration
}

// Email sends the HTML digest as the message body with the other report
// files attached.
type Email struct {
	cfg EmailConfig
}

// NewEmail creates a new email notifier.
func NewEmail(cfg EmailConfig) *Email {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Email{cfg: cfg}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Send(ctx context.Context, d *Digest) error {
	msg, err := e.buildMessage(d)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(e.cfg.Host, e.clientOptions()...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// clientOptions picks implicit TLS on 465, STARTTLS when UseTLS is set,
// and plaintext otherwise.
func (e *Email) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(e.cfg.Port),
		mail.WithTimeout(e.cfg.Timeout),
	}
	switch {
	case e.cfg.Port == 465:
		opts = append(opts, mail.WithSSL())
	case e.cfg.UseTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if e.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(e.cfg.Username),
			mail.WithPassword(e.cfg.Password),
		)
	}
	return opts
}

func (e *Email) buildMessage(d *Digest) (*mail.Msg, error) {
	if len(e.cfg.To) == 0 {
		return nil, ErrNoRecipients
	}

	msg := mail.NewMsg()
	if err := msg.From(e.cfg.From); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(e.cfg.To...); err != nil {
		return nil, fmt.Errorf("set recipients: %w", err)
	}
	msg.Subject(d.Subject())
	msg.SetBodyString(mail.TypeTextHTML, emailBody(d))

	if e.cfg.SendAttachments {
		for _, f := range report.Formats {
			p, ok := d.Files[f]
			if !ok || f == report.FormatHTML {
				continue
			}
			if _, err := os.Stat(p); err != nil {
				continue
			}
			msg.AttachFile(p, mail.WithFileName(filepath.Base(p)))
		}
	}
	return msg, nil
}

// emailBody prefers the rendered HTML report and falls back to a short
// stats page when it is missing.
func emailBody(d *Digest) string {
	if p, ok := d.Files[report.FormatHTML]; ok {
		if data, err := os.ReadFile(p); err == nil {
			return string(data)
		}
	}
	return fallbackHTML(d)
}

func fallbackHTML(d *Digest) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<h1>🧠 AI Coding Digest</h1><p>%s</p>", html.EscapeString(d.Date))
	fmt.Fprintf(&b, "<p>Total items: <strong>%d</strong></p>", d.Stats.TotalItems)

	if len(d.Stats.Sources) > 0 {
		keys := make([]string, 0, len(d.Stats.Sources))
		for k := range d.Stats.Sources {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("<ul>")
		for _, k := range keys {
			fmt.Fprintf(&b, "<li>%s: %d</li>", html.EscapeString(k), d.Stats.Sources[k])
		}
		b.WriteString("</ul>")
	}

	if len(d.Top) > 0 {
		b.WriteString("<h2>Top items</h2><ol>")
		for _, h := range d.Top {
			fmt.Fprintf(&b, `<li><a href="%s">%s</a> (%.2f)</li>`,
				html.EscapeString(h.URL), html.EscapeString(h.Title), h.Score)
		}
		b.WriteString("</ol>")
	}

	b.WriteString("<p>See attachments for the full report.</p></body></html>")
	return b.String()
}
