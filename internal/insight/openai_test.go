package insight

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestOpenAIClient_Generate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  You saved money.\n"}}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	text, err := c.Generate(context.Background(), "summary")
	require.NoError(t, err)
	assert.Equal(t, "You saved money.", text)
	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, 200, got.MaxTokens)
	assert.InDelta(t, 0.3, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "summary", got.Messages[0].Content)
}

func TestOpenAIClient_Errors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		malformed bool
	}{
		{"server error", http.StatusInternalServerError, `{"error":"down"}`, false},
		{"rate limited", http.StatusTooManyRequests, `{}`, false},
		{"bad json", http.StatusOK, `{not json`, true},
		{"no choices", http.StatusOK, `{"choices":[]}`, true},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"content":"  "}}]}`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
			require.NoError(t, err)
			_, err = c.Generate(context.Background(), "p")
			require.Error(t, err)
			assert.Equal(t, tc.malformed, errors.Is(err, ErrMalformedResponse))
		})
	}
}
