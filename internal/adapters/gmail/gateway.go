package gmail

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"net/http"
	"strings"

	"cloud.google.com/go/auth"
	"github.com/mikey/mailbox-triage/internal/config"
	"github.com/mikey/mailbox-triage/internal/core"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	// Gmail shows hidden labels nowhere in the UI
	labelListVisibilityHide   = "labelHide"
	messageListVisibilityHide = "hide"

	defaultPageSize = 100
)

// Gateway implements core.Mailbox on top of the Gmail REST API
type Gateway struct {
	service  *gmailapi.Service
	userID   string
	pageSize int64
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewService creates a Gmail API client authorized by the token source
func NewService(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*gmailapi.Service, error) {
	opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	service, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return service, nil
}

// NewGateway creates a new Gmail mailbox gateway
func NewGateway(service *gmailapi.Service, cfg config.GmailConfig, logger *zap.Logger) *Gateway {
	userID := cfg.UserID
	if userID == "" {
		userID = "me"
	}

	pageSize := int64(cfg.PageSize)
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Gateway{
		service:  service,
		userID:   userID,
		pageSize: pageSize,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
	}
}

// Verify checks that the session can reach the mailbox
func (g *Gateway) Verify(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return core.NewTransientError("users.getProfile", err)
	}

	profile, err := g.service.Users.GetProfile(g.userID).Context(ctx).Do()
	if err != nil {
		return classify("users.getProfile", err)
	}

	g.logger.Info("Connected to Gmail",
		zap.String("email", profile.EmailAddress),
		zap.Int64("messages_total", profile.MessagesTotal))
	return nil
}

// DiscoverCandidates lists unread messages not yet carrying the marker.
// Pages are requested lazily as the sequence is consumed.
func (g *Gateway) DiscoverCandidates(ctx context.Context, marker core.Marker) iter.Seq2[core.MessageRef, error] {
	query := DiscoveryQuery(marker.Name)

	return func(yield func(core.MessageRef, error) bool) {
		pageToken := ""
		for {
			if err := g.limiter.Wait(ctx); err != nil {
				yield(core.MessageRef{}, core.NewTransientError("messages.list", err))
				return
			}

			call := g.service.Users.Messages.List(g.userID).
				Q(query).
				MaxResults(g.pageSize).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}

			resp, err := call.Do()
			if err != nil {
				yield(core.MessageRef{}, classify("messages.list", err))
				return
			}

			for _, msg := range resp.Messages {
				if !yield(core.MessageRef{ID: msg.Id}, nil) {
					return
				}
			}

			if resp.NextPageToken == "" {
				return
			}
			pageToken = resp.NextPageToken
		}
	}
}

// DiscoveryQuery returns the search expression for unread messages without
// the marker label
func DiscoveryQuery(markerName string) string {
	label := markerName
	if strings.ContainsAny(label, " \t\"") {
		label = `"` + strings.ReplaceAll(label, `"`, `\"`) + `"`
	}
	return "is:unread -label:" + label
}

// FetchSummary retrieves sender, subject and the server snippet. Absent
// headers yield empty strings.
func (g *Gateway) FetchSummary(ctx context.Context, ref core.MessageRef) (*core.Summary, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, core.NewTransientError("messages.get", err)
	}

	msg, err := g.service.Users.Messages.Get(g.userID, ref.ID).
		Format("metadata").
		MetadataHeaders("From", "Subject").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("messages.get", err)
	}

	summary := &core.Summary{Excerpt: msg.Snippet}
	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			switch {
			case strings.EqualFold(header.Name, "From") && summary.Sender == "":
				summary.Sender = header.Value
			case strings.EqualFold(header.Name, "Subject") && summary.Subject == "":
				summary.Subject = header.Value
			}
		}
	}

	return summary, nil
}

// ApplyLabels adds and removes labels in a single modify request
func (g *Gateway) ApplyLabels(ctx context.Context, ref core.MessageRef, add, remove []core.LabelID) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return core.NewTransientError("messages.modify", err)
	}

	req := &gmailapi.ModifyMessageRequest{
		AddLabelIds:    labelIDs(add),
		RemoveLabelIds: labelIDs(remove),
	}
	if _, err := g.service.Users.Messages.Modify(g.userID, ref.ID, req).Context(ctx).Do(); err != nil {
		return classify("messages.modify", err)
	}
	return nil
}

// ResolveOrCreateLabel returns the id of the label with the given name,
// creating it when absent
func (g *Gateway) ResolveOrCreateLabel(ctx context.Context, name string, opts core.LabelOptions) (core.LabelID, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", core.NewTransientError("labels.list", err)
	}

	resp, err := g.service.Users.Labels.List(g.userID).Context(ctx).Do()
	if err != nil {
		return "", classify("labels.list", err)
	}
	for _, label := range resp.Labels {
		if label.Name == name {
			return core.LabelID(label.Id), nil
		}
	}

	label := &gmailapi.Label{Name: name}
	if opts.HiddenFromUser {
		label.LabelListVisibility = labelListVisibilityHide
		label.MessageListVisibility = messageListVisibilityHide
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return "", core.NewTransientError("labels.create", err)
	}

	created, err := g.service.Users.Labels.Create(g.userID, label).Context(ctx).Do()
	if err != nil {
		return "", classify("labels.create", err)
	}

	g.logger.Info("Created label", zap.String("name", name), zap.String("label_id", created.Id))
	return core.LabelID(created.Id), nil
}

func labelIDs(ids []core.LabelID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// classify maps an API failure onto the transient/permanent taxonomy.
// Quota and server errors are transient, other client errors permanent. A
// rejected token refresh (revoked or expired grant) is permanent even though
// it reaches us wrapped in a transport error.
func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests, apiErr.Code >= http.StatusInternalServerError:
			return core.NewTransientError(op, err)
		case apiErr.Code == http.StatusForbidden && isRateLimitReason(apiErr):
			return core.NewTransientError(op, err)
		default:
			return core.NewPermanentError(op, err)
		}
	}

	if status, ok := tokenFailureStatus(err); ok {
		if isRetryableStatus(status) {
			return core.NewTransientError(op, err)
		}
		return core.NewPermanentError(op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return core.NewTransientError(op, err)
	}

	return core.NewTransientError(op, err)
}

// tokenFailureStatus reports the HTTP status of the token endpoint response
// when err comes from a failed token fetch. Status 0 means no response was
// attached.
func tokenFailureStatus(err error) (int, bool) {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response == nil {
			return 0, true
		}
		return retrieveErr.Response.StatusCode, true
	}

	var authErr *auth.Error
	if errors.As(err, &authErr) {
		if authErr.Response == nil {
			return 0, true
		}
		return authErr.Response.StatusCode, true
	}

	return 0, false
}

func isRetryableStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
}

func isRateLimitReason(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}
