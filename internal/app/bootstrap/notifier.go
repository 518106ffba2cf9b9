package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/ridgeline-site/internal/config"
	"github.com/wolfman30/ridgeline-site/internal/notify"
	"github.com/wolfman30/ridgeline-site/pkg/logging"
)

// BuildNotifier wires the delivery provider named by NOTIFY_PROVIDER.
func BuildNotifier(ctx context.Context, cfg *appconfig.Config, loadAWS AWSConfigLoader, logger *logging.Logger) (notify.Notifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.NotifyProvider {
	case appconfig.NotifyProviderSES:
		if loadAWS == nil {
			return nil, fmt.Errorf("bootstrap: ses notifier needs AWS config")
		}
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.NotifyFromName,
		}, logger)
		logger.Info("notifier: ses", "from", cfg.SESFromEmail)
		return notify.NewEmailNotifier(appconfig.NotifyProviderSES, sender, logger), nil

	case appconfig.NotifyProviderSendGrid:
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.NotifyFromName,
		}, logger)
		if sender == nil {
			return nil, fmt.Errorf("bootstrap: SENDGRID_API_KEY is required for the sendgrid notifier")
		}
		logger.Info("notifier: sendgrid", "from", cfg.SendGridFromEmail)
		return notify.NewEmailNotifier(appconfig.NotifyProviderSendGrid, sender, logger), nil

	case appconfig.NotifyProviderStub:
		logger.Warn("notifier: stub, submissions are logged only")
		return notify.NewStubNotifier(logger), nil

	default:
		relay := notify.NewRelayNotifier(notify.RelayConfig{
			BaseURLOverride: cfg.SiteBaseURL,
			Timeout:         cfg.RelayTimeout,
		}, logger)
		logger.Info("notifier: relay", "endpoint", relay.Endpoint())
		return relay, nil
	}
}
