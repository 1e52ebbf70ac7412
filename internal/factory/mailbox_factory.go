package factory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mikey/mailbox-triage/internal/adapters/gmail"
	"github.com/mikey/mailbox-triage/internal/adapters/imap"
	"github.com/mikey/mailbox-triage/internal/config"
	"github.com/mikey/mailbox-triage/internal/core"
	"github.com/mikey/mailbox-triage/internal/session"
	"github.com/mikey/mailbox-triage/internal/utils"
	"go.uber.org/zap"
)

// MailboxFactory creates the mailbox gateway selected by mailbox.provider
// and owns the resources opened for it
type MailboxFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
	tokenStores   *TokenStoreFactory

	mu       sync.Mutex
	stoppers []func()
}

// NewMailboxFactory creates a new mailbox factory
func NewMailboxFactory(
	cfg *config.Config,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
	tokenStores *TokenStoreFactory,
) *MailboxFactory {
	return &MailboxFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
		tokenStores:   tokenStores,
	}
}

// CreateMailbox establishes a session and returns a verified gateway. Any
// error here means no valid session exists and is fatal to the caller.
func (f *MailboxFactory) CreateMailbox(ctx context.Context) (core.Mailbox, error) {
	provider := f.cfg.GetMailbox().Provider

	switch provider {
	case "gmail":
		return f.createGmail(ctx)
	case "imap":
		return f.createIMAP(ctx)
	default:
		return nil, fmt.Errorf("unsupported mailbox provider: %s", provider)
	}
}

func (f *MailboxFactory) createGmail(ctx context.Context) (core.Mailbox, error) {
	gmailCfg := f.cfg.GetGmail()

	store, err := f.tokenStores.CreateTokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}
	if stopper, ok := store.(interface{ Stop() }); ok {
		f.addStopper(stopper.Stop)
	}

	provider, err := session.NewGoogleProviderFromFile(
		gmailCfg.CredentialsFile,
		gmailCfg.Scopes,
		store,
		gmailCfg.UserID,
		f.logger,
	)
	if err != nil {
		return nil, err
	}

	tokenSource, err := provider.TokenSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain Gmail session: %w", err)
	}

	service, err := gmail.NewService(ctx, tokenSource)
	if err != nil {
		return nil, err
	}

	gateway := gmail.NewGateway(service, gmailCfg, f.logger)
	if err := gateway.Verify(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify Gmail session: %w", err)
	}
	return gateway, nil
}

func (f *MailboxFactory) createIMAP(ctx context.Context) (core.Mailbox, error) {
	imapCfg := f.cfg.GetIMAP()
	if imapCfg.Host == "" || imapCfg.Username == "" {
		return nil, fmt.Errorf("imap.host and imap.username are required")
	}

	gateway := imap.NewGateway(imapCfg, f.textProcessor, f.logger)
	if err := gateway.Verify(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify IMAP session: %w", err)
	}
	return gateway, nil
}

func (f *MailboxFactory) addStopper(stop func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stoppers = append(f.stoppers, stop)
}

// Stop releases resources opened while creating the mailbox
func (f *MailboxFactory) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, stop := range f.stoppers {
		stop()
	}
	f.stoppers = nil
}
