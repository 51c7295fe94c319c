package bootstrap

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/outreach-ai-platform/internal/config"
	"github.com/wolfman30/outreach-ai-platform/internal/inbox"
	"github.com/wolfman30/outreach-ai-platform/internal/mailer"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

// BuildTransport selects the outbound email provider. Without credentials the
// stub transport is used so local runs never send mail.
func BuildTransport(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) mailer.Transport {
	switch cfg.EmailProvider {
	case "sendgrid":
		if t := mailer.NewSendGridTransport(cfg.SendGridAPIKey, logger); t != nil {
			logger.Info("email transport: sendgrid")
			return t
		}
		logger.Warn("SENDGRID_API_KEY missing; using stub email transport")
	case "ses":
		logger.Info("email transport: ses", "region", awsCfg.Region)
		return mailer.NewSESTransport(sesv2.NewFromConfig(awsCfg), logger)
	case "", "stub":
	default:
		logger.Warn("unknown EMAIL_PROVIDER; using stub email transport", "provider", cfg.EmailProvider)
	}
	return mailer.NewStubTransport(logger)
}

// BuildSenders loads the sender rotation file, or a single sender from env.
func BuildSenders(cfg *appconfig.Config) ([]mailer.SenderIdentity, error) {
	if cfg.SendersFile != "" {
		senders, err := mailer.LoadSenders(cfg.SendersFile)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		return senders, nil
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("bootstrap: OUTREACH_SENDERS_FILE or SENDER_EMAIL is required")
	}
	return []mailer.SenderIdentity{{
		Email:        cfg.SenderEmail,
		Name:         cfg.SenderName,
		Signature:    cfg.SenderSignature,
		IMAPPassword: cfg.IMAPPassword,
	}}, nil
}

// MailboxAccounts returns the sender mailboxes replies can be read from.
// Senders without an IMAP password are skipped.
func MailboxAccounts(senders []mailer.SenderIdentity, fallbackPassword string) []inbox.Account {
	var accounts []inbox.Account
	for _, s := range senders {
		password := s.IMAPPassword
		if password == "" {
			password = fallbackPassword
		}
		if password == "" {
			continue
		}
		accounts = append(accounts, inbox.Account{Email: s.Email, Password: password})
	}
	return accounts
}
