package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/auth"

	"github.com/mikey/mailbox-triage/internal/config"
	"github.com/mikey/mailbox-triage/internal/core"
	"github.com/mikey/mailbox-triage/internal/whitelist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// fakeGmail serves the subset of the Gmail REST API the gateway uses
type fakeGmail struct {
	mu sync.Mutex

	pages       [][]string
	queries     []string
	messages    map[string]*gmailapi.Message
	labels      []*gmailapi.Label
	created     []*gmailapi.Label
	modified    map[string]*gmailapi.ModifyMessageRequest
	listStatus  int
	modifyCalls int
}

func newFakeGmail() *fakeGmail {
	return &fakeGmail{
		messages: make(map[string]*gmailapi.Message),
		modified: make(map[string]*gmailapi.ModifyMessageRequest),
	}
}

func (f *fakeGmail) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /gmail/v1/users/{user}/messages", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if f.listStatus != 0 {
			writeError(w, f.listStatus)
			return
		}

		f.queries = append(f.queries, r.URL.Query().Get("q"))
		page := 0
		if tok := r.URL.Query().Get("pageToken"); tok != "" {
			page = int(tok[0] - '0')
		}

		resp := &gmailapi.ListMessagesResponse{}
		if page < len(f.pages) {
			for _, id := range f.pages[page] {
				resp.Messages = append(resp.Messages, &gmailapi.Message{Id: id})
			}
			if page+1 < len(f.pages) {
				resp.NextPageToken = string(rune('0' + page + 1))
			}
		}
		writeJSON(t, w, resp)
	})

	mux.HandleFunc("GET /gmail/v1/users/{user}/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		assert.Equal(t, "metadata", r.URL.Query().Get("format"))
		msg, ok := f.messages[r.PathValue("id")]
		if !ok {
			writeError(w, http.StatusNotFound)
			return
		}
		writeJSON(t, w, msg)
	})

	mux.HandleFunc("POST /gmail/v1/users/{user}/messages/{id}/modify", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		f.modifyCalls++
		var req gmailapi.ModifyMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.modified[r.PathValue("id")] = &req
		writeJSON(t, w, &gmailapi.Message{Id: r.PathValue("id")})
	})

	mux.HandleFunc("GET /gmail/v1/users/{user}/labels", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(t, w, &gmailapi.ListLabelsResponse{Labels: f.labels})
	})

	mux.HandleFunc("POST /gmail/v1/users/{user}/labels", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		var label gmailapi.Label
		require.NoError(t, json.NewDecoder(r.Body).Decode(&label))
		label.Id = "Label_42"
		f.created = append(f.created, &label)
		f.labels = append(f.labels, &label)
		writeJSON(t, w, &label)
	})

	mux.HandleFunc("GET /gmail/v1/users/{user}/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, &gmailapi.Profile{EmailAddress: "me@example.org", MessagesTotal: 12})
	})

	return mux
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func writeError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":%q}}`, status, http.StatusText(status))
}

func newTestGateway(t *testing.T, fake *fakeGmail, pageSize int) *Gateway {
	t.Helper()
	return newLimitedGateway(t, fake, config.GmailConfig{UserID: "me", PageSize: pageSize})
}

func newLimitedGateway(t *testing.T, fake *fakeGmail, cfg config.GmailConfig) *Gateway {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	service, err := gmailapi.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	return NewGateway(service, cfg, zaptest.NewLogger(t))
}

func collect(t *testing.T, gw *Gateway, marker core.Marker) ([]string, error) {
	t.Helper()
	var ids []string
	for ref, err := range gw.DiscoverCandidates(context.Background(), marker) {
		if err != nil {
			return ids, err
		}
		ids = append(ids, ref.ID)
	}
	return ids, nil
}

func TestDiscoverCandidatesFollowsPages(t *testing.T) {
	fake := newFakeGmail()
	fake.pages = [][]string{{"a", "b"}, {"c"}, {"d"}}
	gw := newTestGateway(t, fake, 2)

	ids, err := collect(t, gw, core.Marker{Name: "ML_PROCESSED", ID: "Label_7"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
	assert.Equal(t, []string{
		"is:unread -label:ML_PROCESSED",
		"is:unread -label:ML_PROCESSED",
		"is:unread -label:ML_PROCESSED",
	}, fake.queries)
}

func TestDiscoverCandidatesIsLazy(t *testing.T) {
	fake := newFakeGmail()
	fake.pages = [][]string{{"a", "b"}, {"c"}}
	gw := newTestGateway(t, fake, 2)

	for ref, err := range gw.DiscoverCandidates(context.Background(), core.Marker{Name: "ML_PROCESSED"}) {
		require.NoError(t, err)
		assert.Equal(t, "a", ref.ID)
		break
	}

	assert.Len(t, fake.queries, 1)
}

func TestDiscoverCandidatesEmpty(t *testing.T) {
	gw := newTestGateway(t, newFakeGmail(), 10)

	ids, err := collect(t, gw, core.Marker{Name: "ML_PROCESSED"})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDiscoverCandidatesServerErrorIsTransient(t *testing.T) {
	fake := newFakeGmail()
	fake.listStatus = http.StatusServiceUnavailable
	gw := newTestGateway(t, fake, 10)

	_, err := collect(t, gw, core.Marker{Name: "ML_PROCESSED"})
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
}

func TestFetchSummary(t *testing.T) {
	fake := newFakeGmail()
	fake.messages["m1"] = &gmailapi.Message{
		Id:      "m1",
		Snippet: "Claim your prize now",
		Payload: &gmailapi.MessagePart{Headers: []*gmailapi.MessagePartHeader{
			{Name: "Subject", Value: "You won"},
			{Name: "From", Value: "Promo <promo@unknown-shop.biz>"},
		}},
	}
	fake.messages["m2"] = &gmailapi.Message{Id: "m2", Payload: &gmailapi.MessagePart{}}
	gw := newTestGateway(t, fake, 10)

	summary, err := gw.FetchSummary(context.Background(), core.MessageRef{ID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, core.Summary{
		Sender:  "Promo <promo@unknown-shop.biz>",
		Subject: "You won",
		Excerpt: "Claim your prize now",
	}, *summary)

	bare, err := gw.FetchSummary(context.Background(), core.MessageRef{ID: "m2"})
	require.NoError(t, err)
	assert.Equal(t, core.Summary{}, *bare)
}

func TestFetchSummaryMissingMessageIsPermanent(t *testing.T) {
	gw := newTestGateway(t, newFakeGmail(), 10)

	_, err := gw.FetchSummary(context.Background(), core.MessageRef{ID: "gone"})
	require.Error(t, err)
	assert.True(t, core.IsPermanent(err))
}

func TestApplyLabels(t *testing.T) {
	fake := newFakeGmail()
	gw := newTestGateway(t, fake, 10)

	err := gw.ApplyLabels(context.Background(), core.MessageRef{ID: "m1"},
		[]core.LabelID{core.LabelSpam}, []core.LabelID{core.LabelInbox})
	require.NoError(t, err)

	require.Contains(t, fake.modified, "m1")
	assert.Equal(t, []string{"SPAM"}, fake.modified["m1"].AddLabelIds)
	assert.Equal(t, []string{"INBOX"}, fake.modified["m1"].RemoveLabelIds)
	assert.Equal(t, 1, fake.modifyCalls)
}

func TestResolveOrCreateLabel(t *testing.T) {
	fake := newFakeGmail()
	fake.labels = []*gmailapi.Label{{Id: "INBOX", Name: "INBOX"}}
	gw := newTestGateway(t, fake, 10)
	ctx := context.Background()

	id, err := gw.ResolveOrCreateLabel(ctx, "ML_PROCESSED", core.LabelOptions{HiddenFromUser: true})
	require.NoError(t, err)
	assert.Equal(t, core.LabelID("Label_42"), id)
	require.Len(t, fake.created, 1)
	assert.Equal(t, "labelHide", fake.created[0].LabelListVisibility)
	assert.Equal(t, "hide", fake.created[0].MessageListVisibility)

	again, err := gw.ResolveOrCreateLabel(ctx, "ML_PROCESSED", core.LabelOptions{HiddenFromUser: true})
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Len(t, fake.created, 1)
}

func TestVerify(t *testing.T) {
	gw := newTestGateway(t, newFakeGmail(), 10)
	assert.NoError(t, gw.Verify(context.Background()))
}

func TestDiscoveryQuery(t *testing.T) {
	assert.Equal(t, "is:unread -label:ML_PROCESSED", DiscoveryQuery("ML_PROCESSED"))
	assert.Equal(t, `is:unread -label:"Triage Done"`, DiscoveryQuery("Triage Done"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"rate limited", &googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{"server error", &googleapi.Error{Code: http.StatusBadGateway}, true},
		{"quota reason", &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}}}, true},
		{"forbidden", &googleapi.Error{Code: http.StatusForbidden}, false},
		{"not found", &googleapi.Error{Code: http.StatusNotFound}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"revoked grant", &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusBadRequest}, ErrorCode: "invalid_grant"}, false},
		{"token endpoint down", &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusServiceUnavailable}}, true},
		{"auth rejected", &url.Error{Op: "Get", URL: "https://gmail.googleapis.com", Err: &auth.Error{Response: &http.Response{StatusCode: http.StatusUnauthorized}}}, false},
		{"auth throttled", &url.Error{Op: "Get", URL: "https://gmail.googleapis.com", Err: &auth.Error{Response: &http.Response{StatusCode: http.StatusTooManyRequests}}}, true},
		{"unknown", errors.New("connection reset"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", tt.err)
			assert.Equal(t, tt.transient, core.IsTransient(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRevokedGrantIsPermanent(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`)
	}))
	t.Cleanup(tokenSrv.Close)

	apiSrv := httptest.NewServer(newFakeGmail().handler(t))
	t.Cleanup(apiSrv.Close)

	ctx := context.Background()
	oauthCfg := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenSrv.URL, AuthStyle: oauth2.AuthStyleInParams},
	}
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: "revoked", Expiry: time.Now().Add(-time.Hour)})

	service, err := NewService(ctx, ts, option.WithEndpoint(apiSrv.URL+"/"))
	require.NoError(t, err)
	gw := NewGateway(service, config.GmailConfig{}, zaptest.NewLogger(t))

	_, err = gw.FetchSummary(ctx, core.MessageRef{ID: "m1"})
	require.Error(t, err)
	assert.True(t, core.IsPermanent(err), "got %v", err)
}

type constantClassifier float64

func (c constantClassifier) Score(context.Context, string) (float64, error) {
	return float64(c), nil
}

func TestReconcilerDrainsRateLimitedBacklog(t *testing.T) {
	fake := newFakeGmail()
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("m%d", i)
		fake.pages = append(fake.pages, []string{id})
		fake.messages[id] = &gmailapi.Message{Id: id, Snippet: "hello"}
	}
	gw := newLimitedGateway(t, fake, config.GmailConfig{
		PageSize:          1,
		RequestsPerSecond: 20,
		Burst:             1,
	})

	logger := zaptest.NewLogger(t)
	policy := core.NewPolicy(constantClassifier(0.1), whitelist.NewChecker(nil, logger), 0.95, logger)
	reconciler := core.NewReconciler(gw, policy, core.Marker{Name: "ML_PROCESSED", ID: "Label_7"}, core.ReconcilerOptions{
		PollInterval:     time.Minute,
		OperationTimeout: 150 * time.Millisecond,
	}, logger)

	stats := reconciler.RunCycle(context.Background())

	require.NoError(t, stats.DiscoveryErr)
	assert.Equal(t, 6, stats.Discovered)
	assert.Equal(t, 6, stats.Legitimate)
	assert.Equal(t, 6, fake.modifyCalls)
	assert.Len(t, fake.queries, 6)
}
