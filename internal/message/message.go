// internal/message/message.go
//
// Beacon – outbound email.
//
// Context
//   Handlers ask for mail by template id (`SendByID`) and return at once.
//   The request is queued and a small worker pool does the slow part: load
//   the template, fill placeholders, render HTML, resolve SMTP credentials,
//   and talk to the server.  Outcomes are counted in
//   beacon_email_total{email_id,result}.
//
// Workflow
//   Deliver(ctx, id, params)
//     1.  `email-sending` off                → skipped, no error.
//     2.  No `to` parameter                  → ErrNoRecipient.
//     3.  Template missing                   → ErrNotFound.
//     4.  SMTP host, user, or pass missing   → ErrNoSMTP.
//     5.  Send multipart mail.
//
// Notes
//   •  Config values win over admin settings for SMTP credentials.  The
//      admin password is stored encrypted and decrypted here.
//   •  In the test environment nothing is sent and every request counts as
//      sent.
//   •  A full queue drops the request with an ERROR log.
//   •  Cancelling the Start context or calling Close stops intake; the
//      workers still deliver everything already queued before they exit.
//      SendByID after that returns ErrClosed.
//
//------------------------------------------------------------------------------

package message

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/yanizio/beacon/internal/metrics"
	"github.com/yanizio/beacon/internal/settings"
)

// Sentinel errors returned by Deliver.
var (
	ErrNoRecipient = errors.New("email: missing to address")
	ErrNoSMTP      = errors.New("email: smtp host, user, or pass not configured")
	ErrClosed      = errors.New("email: service closed")
	ErrQueueFull   = errors.New("email: queue full")
)

// Email is one outbound message.
type Email struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

// AdminSource reads the admin settings snapshot.
type AdminSource interface {
	AdminValues(ctx context.Context) (settings.Values, error)
}

// Options configures a Service.
type Options struct {
	Env           string
	ClientBaseURL string
	SMTP          SMTPConfig
	Crypter       *settings.Crypter
	QueueSize     int
	Workers       int
}

type job struct {
	id     string
	params map[string]string
}

// Service queues and delivers template mail.
type Service struct {
	store  Store
	admin  AdminSource
	sender Sender
	opts   Options

	jobs     chan job
	wg       sync.WaitGroup
	mu       sync.Mutex // guards isClosed and sends on jobs
	isClosed bool
}

// NewService wires the service.  Start must run before queued mail is sent.
func NewService(store Store, admin AdminSource, sender Sender, opts Options) *Service {
	if store == nil || admin == nil || sender == nil {
		panic("message.NewService: nil dependency")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	return &Service{store: store, admin: admin, sender: sender, opts: opts, jobs: make(chan job, opts.QueueSize)}
}

// Start launches the workers.  When ctx ends intake stops, and the workers
// deliver what is already queued before they exit.
func (s *Service) Start(ctx context.Context) {
	sendCtx := context.WithoutCancel(ctx)
	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for j := range s.jobs {
				if err := s.Deliver(sendCtx, j.id, j.params); err != nil {
					zap.S().Errorw("email delivery failed", "email", j.id, "err", err)
				}
			}
		}()
	}
	go func() {
		<-ctx.Done()
		s.stop()
	}()
}

// Close stops accepting mail and waits for queued mail to drain.
func (s *Service) Close() {
	s.stop()
	s.wg.Wait()
}

func (s *Service) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isClosed {
		s.isClosed = true
		close(s.jobs)
	}
}

// SendByID queues template id for delivery with params.  It never blocks.
func (s *Service) SendByID(_ context.Context, id string, params map[string]string) error {
	if s.opts.Env == "test" {
		metrics.EmailTotal.WithLabelValues(id, "sent").Inc()
		return nil
	}
	cp := make(map[string]string, len(params)+2)
	for k, v := range params {
		cp[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		metrics.EmailTotal.WithLabelValues(id, "dropped").Inc()
		zap.S().Warnw("email requested after shutdown", "email", id)
		return ErrClosed
	}
	select {
	case s.jobs <- job{id: id, params: cp}:
		return nil
	default:
		metrics.EmailTotal.WithLabelValues(id, "dropped").Inc()
		zap.S().Errorw("email queue full, dropping", "email", id)
		return ErrQueueFull
	}
}

// Deliver sends template id now.
func (s *Service) Deliver(ctx context.Context, id string, params map[string]string) error {
	admin, err := s.admin.AdminValues(ctx)
	if err != nil {
		return s.count(id, fmt.Errorf("email: settings: %w", err))
	}
	if !admin.Bool(settings.EmailSending) {
		metrics.EmailTotal.WithLabelValues(id, "skipped").Inc()
		zap.S().Debugw("email sending disabled", "email", id)
		return nil
	}
	to := strings.TrimSpace(params["to"])
	if to == "" {
		return s.count(id, ErrNoRecipient)
	}

	tpl, err := s.store.FindByEmailID(ctx, id)
	if err != nil {
		return s.count(id, fmt.Errorf("email %s: %w", id, err))
	}
	cfg, err := s.smtpConfig(admin)
	if err != nil {
		return s.count(id, err)
	}

	vars := make(map[string]string, len(params)+2)
	for k, v := range params {
		vars[k] = v
	}
	vars["mainBeaconUrl"] = s.opts.ClientBaseURL
	vars["newPassRequestUrl"] = s.opts.ClientBaseURL + "/u/newpassrequest"

	body := Fill(tpl.DefaultEmail, vars)
	html, err := RenderHTML(body.Text, tpl.FromName)
	if err != nil {
		return s.count(id, err)
	}
	msg := Email{To: []string{to}, Subject: body.Subject, Text: body.Text, HTML: html}
	if err := s.sender.Send(ctx, cfg, msg); err != nil {
		return s.count(id, err)
	}
	zap.S().Infow("email sent", "email", id)
	return s.count(id, nil)
}

// smtpConfig merges config credentials with the admin settings fallback.
func (s *Service) smtpConfig(admin settings.Values) (SMTPConfig, error) {
	cfg := s.opts.SMTP
	if cfg.Host == "" {
		cfg.Host = strings.TrimSpace(admin.String(settings.EmailHost))
	}
	if cfg.User == "" {
		cfg.User = strings.TrimSpace(admin.String(settings.EmailUsername))
	}
	if cfg.Pass == "" {
		enc := strings.TrimSpace(admin.String(settings.EmailPassword))
		if enc != "" && s.opts.Crypter != nil {
			plain, err := s.opts.Crypter.Decrypt(enc)
			if err != nil {
				return SMTPConfig{}, fmt.Errorf("email: decrypt smtp password: %w", err)
			}
			cfg.Pass = plain
		}
	}
	if cfg.Host == "" || cfg.User == "" || cfg.Pass == "" {
		return SMTPConfig{}, ErrNoSMTP
	}
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	return cfg, nil
}

func (s *Service) count(id string, err error) error {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	metrics.EmailTotal.WithLabelValues(id, result).Inc()
	return err
}
