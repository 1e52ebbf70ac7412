package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mikey/mailbox-triage/internal/config"
	"github.com/mikey/mailbox-triage/internal/utils"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestServer(t *testing.T, status int, content string, seen *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID: "chatcmpl-1",
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClassifier(t *testing.T, srv *httptest.Server) *Classifier {
	t.Helper()
	return NewClassifier(config.OpenAIConfig{
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/v1",
		ModelName:   "gpt-4o-mini",
		MaxTokens:   200,
		MaxBodySize: 4096,
	}, zaptest.NewLogger(t), utils.NewTextProcessor(nil))
}

func TestScore(t *testing.T) {
	var req openai.ChatCompletionRequest
	srv := newTestServer(t, http.StatusOK, `{"spam_probability": 0.91}`, &req)

	score, err := newTestClassifier(t, srv).Score(context.Background(), "Subject: Win From: x Body: prize")
	require.NoError(t, err)
	assert.InDelta(t, 0.91, score, 1e-9)

	assert.Equal(t, "gpt-4o-mini", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[1].Content, "Subject: Win From: x Body: prize")
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)
}

func TestScoreAPIError(t *testing.T) {
	srv := newTestServer(t, http.StatusTooManyRequests, "", nil)

	_, err := newTestClassifier(t, srv).Score(context.Background(), "text")
	require.Error(t, err)

	var apiErr *openai.APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestScoreUnparseableReply(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, "definitely spam", nil)

	_, err := newTestClassifier(t, srv).Score(context.Background(), "text")
	assert.Error(t, err)
}
