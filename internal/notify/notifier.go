package notify

import "context"

// Notifier delivers best-effort push messages. Implementations log their
// own failures and never return them: a dead notification channel must not
// stall a purchase path.
type Notifier interface {
	// NotifyTenant pushes a titled message to the tenant's own channel.
	NotifyTenant(ctx context.Context, tenant, title, body string)
	// NotifyOperator pushes an operational message about the tenant's run
	// to the operator channel.
	NotifyOperator(ctx context.Context, tenant, message string)
}

// Multi fans one notification out to several sinks.
type Multi []Notifier

func (m Multi) NotifyTenant(ctx context.Context, tenant, title, body string) {
	for _, n := range m {
		n.NotifyTenant(ctx, tenant, title, body)
	}
}

func (m Multi) NotifyOperator(ctx context.Context, tenant, message string) {
	for _, n := range m {
		n.NotifyOperator(ctx, tenant, message)
	}
}

// Nop discards everything. Useful in tests and when no sink is configured.
type Nop struct{}

func (Nop) NotifyTenant(context.Context, string, string, string) {}
func (Nop) NotifyOperator(context.Context, string, string)       {}
