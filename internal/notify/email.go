package notify

import (
	"context"
	"sync"

	gomail "gopkg.in/gomail.v2"

	"gift_sniper/internal/config"
	"gift_sniper/internal/logbus"
)

type emailJob struct {
	tenant  string
	to      string
	subject string
	body    string
}

// EmailNotifier sends tenant notifications over SMTP. Sends are queued and
// drained by a single worker so a slow SMTP server never blocks the engine.
// Operator messages are not mailed; those go through telegram only.
type EmailNotifier struct {
	cfg    config.EmailNotifyConfig
	lookup SettingsLookup
	bus    *logbus.Bus

	jobs chan emailJob
	once sync.Once
	done chan struct{}
}

func NewEmailNotifier(cfg config.EmailNotifyConfig, lookup SettingsLookup, bus *logbus.Bus) *EmailNotifier {
	n := &EmailNotifier{
		cfg:    cfg,
		lookup: lookup,
		bus:    bus,
		jobs:   make(chan emailJob, 64),
		done:   make(chan struct{}),
	}
	go n.worker()
	return n
}

func (n *EmailNotifier) NotifyTenant(ctx context.Context, tenant, title, body string) {
	if !n.cfg.Enabled {
		return
	}
	to, err := n.lookup.TenantEmail(ctx, tenant)
	if err != nil || to == "" {
		return
	}
	select {
	case n.jobs <- emailJob{tenant: tenant, to: to, subject: title, body: body}:
	default:
		if n.bus != nil {
			n.bus.Log(tenant, "warn", "email queue full, notification dropped", nil)
		}
	}
}

func (n *EmailNotifier) NotifyOperator(context.Context, string, string) {}

func (n *EmailNotifier) Close() {
	n.once.Do(func() {
		close(n.jobs)
		<-n.done
	})
}

func (n *EmailNotifier) worker() {
	defer close(n.done)
	dialer := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.From, n.cfg.Password)
	for job := range n.jobs {
		m := gomail.NewMessage()
		m.SetHeader("From", n.cfg.From)
		m.SetHeader("To", job.to)
		m.SetHeader("Subject", job.subject)
		m.SetBody("text/plain", job.body)
		if err := dialer.DialAndSend(m); err != nil {
			if n.bus != nil {
				n.bus.Log(job.tenant, "warn", "email send failed", map[string]any{
					"to":    job.to,
					"error": err.Error(),
				})
			}
		}
	}
}
