package imap

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"iter"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/mikey/mailbox-triage/internal/config"
	"github.com/mikey/mailbox-triage/internal/core"
	"github.com/mikey/mailbox-triage/internal/utils"
	"go.uber.org/zap"
)

const defaultExcerptBytes = 2048

// Gateway implements core.Mailbox on an IMAP server. Labels map onto the
// IMAP model: INBOX and SPAM are folders, every other label is a keyword
// flag on the message. Message ids are UIDs in the inbox folder.
type Gateway struct {
	cfg           config.IMAPConfig
	textProcessor *utils.TextProcessor
	logger        *zap.Logger
}

// NewGateway creates a new IMAP mailbox gateway
func NewGateway(cfg config.IMAPConfig, textProcessor *utils.TextProcessor, logger *zap.Logger) *Gateway {
	if cfg.Inbox == "" {
		cfg.Inbox = "INBOX"
	}
	if cfg.ExcerptBytes <= 0 {
		cfg.ExcerptBytes = defaultExcerptBytes
	}
	return &Gateway{
		cfg:           cfg,
		textProcessor: textProcessor,
		logger:        logger,
	}
}

// Verify logs in and out once so that bad credentials fail at startup
func (g *Gateway) Verify(ctx context.Context) error {
	return g.withInbox(ctx, "login", true, func(c *imapclient.Client, data *imap.SelectData) error {
		g.logger.Info("Connected to IMAP server",
			zap.String("host", g.cfg.Host),
			zap.String("mailbox", g.cfg.Inbox),
			zap.Uint32("messages_total", data.NumMessages))
		return nil
	})
}

// DiscoverCandidates searches the inbox for messages that are neither seen
// nor flagged with the marker keyword
func (g *Gateway) DiscoverCandidates(ctx context.Context, marker core.Marker) iter.Seq2[core.MessageRef, error] {
	return func(yield func(core.MessageRef, error) bool) {
		var uids []imap.UID
		err := g.withInbox(ctx, "uid search", true, func(c *imapclient.Client, _ *imap.SelectData) error {
			criteria := &imap.SearchCriteria{
				NotFlag: []imap.Flag{imap.FlagSeen, imap.Flag(marker.ID)},
			}
			data, err := c.UIDSearch(criteria, nil).Wait()
			if err != nil {
				return err
			}
			uids = data.AllUIDs()
			return nil
		})
		if err != nil {
			yield(core.MessageRef{}, err)
			return
		}

		for _, uid := range uids {
			if !yield(core.MessageRef{ID: strconv.FormatUint(uint64(uid), 10)}, nil) {
				return
			}
		}
	}
}

// FetchSummary reads the envelope and the head of the body without setting
// the seen flag
func (g *Gateway) FetchSummary(ctx context.Context, ref core.MessageRef) (*core.Summary, error) {
	uid, err := parseUID(ref)
	if err != nil {
		return nil, core.NewPermanentError("uid fetch", err)
	}

	var summary *core.Summary
	err = g.withInbox(ctx, "uid fetch", true, func(c *imapclient.Client, _ *imap.SelectData) error {
		section := &imap.FetchItemBodySection{
			Peek:    true,
			Partial: &imap.SectionPartial{Offset: 0, Size: int64(g.cfg.ExcerptBytes)},
		}
		cmd := c.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
			UID:         true,
			Envelope:    true,
			BodySection: []*imap.FetchItemBodySection{section},
		})
		defer cmd.Close()

		msg := cmd.Next()
		if msg == nil {
			if err := cmd.Close(); err != nil {
				return err
			}
			return errMessageNotFound
		}

		buf, err := msg.Collect()
		if err != nil {
			return err
		}

		summary = g.summaryFromBuffer(buf, buf.FindBodySection(section))
		return cmd.Close()
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (g *Gateway) summaryFromBuffer(buf *imapclient.FetchMessageBuffer, raw []byte) *core.Summary {
	summary := &core.Summary{}
	if buf.Envelope != nil {
		summary.Subject = buf.Envelope.Subject
		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			summary.Sender = utils.FormatAddress(from.Name, from.Addr())
		}
	}

	if len(raw) == 0 {
		return summary
	}

	parsed, err := utils.ParseMessage(bytes.NewReader(raw))
	if err != nil {
		g.logger.Debug("Failed to parse message body", zap.Error(err))
		return summary
	}
	summary.Excerpt = g.textProcessor.Excerpt(parsed.Text, utils.SnippetRunes)
	return summary
}

// ApplyLabels maps label changes onto IMAP. Adding SPAM moves the message
// to the spam folder, which also takes it out of the inbox. Other labels
// become keyword flags.
func (g *Gateway) ApplyLabels(ctx context.Context, ref core.MessageRef, add, remove []core.LabelID) error {
	uid, err := parseUID(ref)
	if err != nil {
		return core.NewPermanentError("uid store", err)
	}

	moveToSpam := slices.Contains(add, core.LabelSpam)
	addFlags := keywordFlags(add)
	removeFlags := keywordFlags(remove)

	return g.withInbox(ctx, "uid store", false, func(c *imapclient.Client, _ *imap.SelectData) error {
		uidSet := imap.UIDSetNum(uid)

		if len(addFlags) > 0 {
			if err := storeFlags(c, uidSet, imap.StoreFlagsAdd, addFlags); err != nil {
				return err
			}
		}
		if len(removeFlags) > 0 {
			if err := storeFlags(c, uidSet, imap.StoreFlagsDel, removeFlags); err != nil {
				return err
			}
		}

		if moveToSpam {
			if g.cfg.SpamFolder == "" {
				return errors.New("no spam folder configured")
			}
			if _, err := c.Move(uidSet, g.cfg.SpamFolder).Wait(); err != nil {
				return fmt.Errorf("moving to %s: %w", g.cfg.SpamFolder, err)
			}
		}
		return nil
	})
}

func storeFlags(c *imapclient.Client, uidSet imap.UIDSet, op imap.StoreFlagsOp, flags []imap.Flag) error {
	return c.Store(uidSet, &imap.StoreFlags{
		Op:     op,
		Silent: true,
		Flags:  flags,
	}, nil).Close()
}

// ResolveOrCreateLabel checks that the inbox accepts the keyword as a
// permanent flag. Keywords exist implicitly once stored, so the label id is
// the name itself. Keywords are never listed as folders, which keeps the
// marker hidden from the user.
func (g *Gateway) ResolveOrCreateLabel(ctx context.Context, name string, _ core.LabelOptions) (core.LabelID, error) {
	if !isAtom(name) {
		return "", core.NewPermanentError("select", fmt.Errorf("%q is not a valid IMAP keyword", name))
	}

	flag := imap.Flag(name)
	err := g.withInbox(ctx, "select", true, func(_ *imapclient.Client, data *imap.SelectData) error {
		if slices.Contains(data.PermanentFlags, imap.FlagWildcard) || slices.Contains(data.PermanentFlags, flag) {
			return nil
		}
		return fmt.Errorf("%w: %s does not allow keyword %q", errKeywordsUnsupported, g.cfg.Inbox, name)
	})
	if err != nil {
		return "", err
	}

	g.logger.Debug("Using IMAP keyword as label", zap.String("keyword", name))
	return core.LabelID(name), nil
}

var (
	errMessageNotFound     = errors.New("message not found")
	errKeywordsUnsupported = errors.New("mailbox does not support custom keywords")
)

// withInbox opens a connection, logs in, selects the inbox and runs fn.
// Every operation uses its own connection.
func (g *Gateway) withInbox(
	ctx context.Context,
	op string,
	readOnly bool,
	fn func(c *imapclient.Client, data *imap.SelectData) error,
) error {
	client, stop, err := g.connect(ctx)
	if err != nil {
		return classify(op, err)
	}
	defer func() {
		stop()
		_ = client.Logout().Wait()
		_ = client.Close()
	}()

	data, err := client.Select(g.cfg.Inbox, &imap.SelectOptions{ReadOnly: readOnly}).Wait()
	if err != nil {
		return classify(op, fmt.Errorf("selecting %s: %w", g.cfg.Inbox, err))
	}

	if err := fn(client, data); err != nil {
		return classify(op, err)
	}
	return nil
}

// connect dials and authenticates. The returned stop func must be called
// once the connection is no longer used.
func (g *Gateway) connect(ctx context.Context) (*imapclient.Client, func() bool, error) {
	addr := net.JoinHostPort(g.cfg.Host, strconv.Itoa(g.cfg.Port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// unblock pending reads when ctx is cancelled
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})

	opts := &imapclient.Options{
		TLSConfig: &tls.Config{ServerName: g.cfg.Host},
	}

	var client *imapclient.Client
	switch {
	case g.cfg.TLS:
		client = imapclient.New(tls.Client(conn, opts.TLSConfig), opts)
	case g.cfg.StartTLS:
		client, err = imapclient.NewStartTLS(conn, opts)
		if err != nil {
			stop()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("starting TLS with %s: %w", addr, err)
		}
	default:
		client = imapclient.New(conn, opts)
	}

	if err := client.Login(g.cfg.Username, g.cfg.Password).Wait(); err != nil {
		stop()
		_ = client.Close()
		return nil, nil, fmt.Errorf("authentication failed for %s: %w", g.cfg.Username, err)
	}

	return client, stop, nil
}

// classify maps IMAP failures onto the transient/permanent taxonomy. Tagged
// NO and BAD responses are permanent unless the server reports a temporary
// condition; transport failures are transient.
func classify(op string, err error) error {
	var mailboxErr *core.MailboxError
	if errors.As(err, &mailboxErr) {
		return err
	}

	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		switch imapErr.Code {
		case imap.ResponseCodeUnavailable, imap.ResponseCodeServerBug, imap.ResponseCodeInUse, imap.ResponseCodeLimit:
			return core.NewTransientError(op, err)
		}
		if imapErr.Type == imap.StatusResponseTypeBye {
			return core.NewTransientError(op, err)
		}
		return core.NewPermanentError(op, err)
	}

	if errors.Is(err, errMessageNotFound) || errors.Is(err, errKeywordsUnsupported) {
		return core.NewPermanentError(op, err)
	}

	return core.NewTransientError(op, err)
}

func parseUID(ref core.MessageRef) (imap.UID, error) {
	n, err := strconv.ParseUint(ref.ID, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid message id %q", ref.ID)
	}
	return imap.UID(n), nil
}

// keywordFlags drops the folder-backed labels
func keywordFlags(labels []core.LabelID) []imap.Flag {
	var flags []imap.Flag
	for _, label := range labels {
		if label == core.LabelInbox || label == core.LabelSpam || label == "" {
			continue
		}
		flags = append(flags, imap.Flag(label))
	}
	return flags
}

// isAtom reports whether name can be sent as an IMAP keyword
func isAtom(name string) bool {
	if name == "" || strings.HasPrefix(name, `\`) {
		return false
	}
	for _, r := range name {
		if r <= 0x20 || r >= 0x7f || strings.ContainsRune(`(){%*"\]`, r) {
			return false
		}
	}
	return true
}
