package cmd

import (
	"log/slog"
	"time"

	"github.com/dukex/flows/pkg/actions/branch"
	"github.com/dukex/flows/pkg/actions/mailchimpaudience"
	"github.com/dukex/flows/pkg/actions/sendemail"
	"github.com/dukex/flows/pkg/actions/wait"
	"github.com/dukex/flows/pkg/mailchimp"
	"github.com/dukex/flows/pkg/mailer"
	"github.com/dukex/flows/pkg/persistence"
	"github.com/dukex/flows/pkg/registry"
	"github.com/dukex/flows/pkg/workflow"
)

// ActionConfig configures the collaborators of the built-in actions.
type ActionConfig struct {
	MailchimpTimeout    time.Duration
	MailchimpMaxRetries uint64
	MailchimpRateLimit  float64

	// SMTPAddr selects the SMTP mailer; without it emails are only logged.
	SMTPAddr     string
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string
}

// NewRegistry returns the catalog of built-in actions.
func NewRegistry(logger *slog.Logger) (*registry.Registry, error) {
	return registry.NewDefaultRegistry(logger.With("module", "registry"))
}

// NewDispatcher wires every built-in action executor to store and its external services.
func NewDispatcher(logger *slog.Logger, store persistence.Persistence, config ActionConfig) *workflow.Dispatcher {
	var opts []mailchimp.Option

	if config.MailchimpTimeout > 0 {
		opts = append(opts, mailchimp.WithTimeout(config.MailchimpTimeout))
	}

	if config.MailchimpMaxRetries > 0 {
		opts = append(opts, mailchimp.WithMaxRetries(config.MailchimpMaxRetries))
	}

	if config.MailchimpRateLimit > 0 {
		opts = append(opts, mailchimp.WithRateLimit(config.MailchimpRateLimit))
	}

	return &workflow.Dispatcher{
		Wait:                   wait.NewAction(),
		AddToMailchimpAudience: mailchimpaudience.NewAction(store.Fans(), store.ProviderAccounts(), mailchimp.NewClient(logger, opts...)),
		SendEmail:              sendemail.NewAction(store.Fans(), newMailer(logger, config)),
		BooleanBranch:          branch.NewAction(store.Fans()),
	}
}

func newMailer(logger *slog.Logger, config ActionConfig) mailer.Mailer {
	if config.SMTPAddr == "" {
		logger.Warn("No SMTP server configured, emails are logged instead of sent")

		return mailer.NewLogMailer(logger)
	}

	return mailer.NewSMTPMailer(logger, mailer.SMTPConfig{
		Addr:        config.SMTPAddr,
		Username:    config.SMTPUsername,
		Password:    config.SMTPPassword,
		DefaultFrom: config.EmailFrom,
	})
}
