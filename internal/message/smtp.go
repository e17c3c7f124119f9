// internal/message/smtp.go
//
// SMTP delivery.
//
// Context
//   Each Email is sent as multipart/alternative with a plain-text part and
//   the rendered HTML part.  Credentials are resolved per send, because an
//   operator may change the admin SMTP settings at runtime.
//
//------------------------------------------------------------------------------

package message

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// SMTPConfig is one resolved set of server credentials.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

func (c SMTPConfig) addr() string {
	port := c.Port
	if port == 0 {
		port = 587
	}
	return c.Host + ":" + strconv.Itoa(port)
}

// Sender delivers one Email.
type Sender interface {
	Send(ctx context.Context, cfg SMTPConfig, msg Email) error
}

// SMTPSender sends through net/smtp with PLAIN auth.
type SMTPSender struct{}

func (SMTPSender) Send(ctx context.Context, cfg SMTPConfig, msg Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := buildMIME(cfg.From, msg)
	if err != nil {
		return err
	}
	auth := smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)
	if err := smtp.SendMail(cfg.addr(), auth, cfg.From, msg.To, raw); err != nil {
		return fmt.Errorf("smtp send to %s: %w", cfg.addr(), err)
	}
	return nil
}

// buildMIME assembles headers and a multipart/alternative body.
func buildMIME(from string, msg Email) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for _, part := range []struct{ ctype, content string }{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	} {
		if part.content == "" {
			continue
		}
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.ctype},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	hdr := func(k, v string) { fmt.Fprintf(&out, "%s: %s\r\n", k, v) }
	hdr("From", from)
	hdr("To", strings.Join(msg.To, ", "))
	hdr("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	hdr("Date", time.Now().Format(time.RFC1123Z))
	hdr("MIME-Version", "1.0")
	hdr("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	out.WriteString("\r\n")
	out.Write(body.Bytes())
	return out.Bytes(), nil
}
