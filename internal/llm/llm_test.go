package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scoreSchema = MustSchema(`{
	"type": "object",
	"required": ["score", "reason"],
	"properties": {
		"score": {"type": "number", "minimum": 0, "maximum": 100},
		"reason": {"type": "string"}
	}
}`)

type score struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

func TestDecodeAcceptsFencedJSON(t *testing.T) {
	t.Parallel()

	var got score
	err := Decode("```json\n{\"score\": 87, \"reason\": \"Go match\"}\n```", scoreSchema, &got)
	require.NoError(t, err)
	assert.Equal(t, score{Score: 87, Reason: "Go match"}, got)
}

func TestDecodeRejectsInvalidOutput(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"empty":        "  ",
		"not json":     "I think this job is great",
		"out of range": `{"score": 140, "reason": "x"}`,
		"missing key":  `{"score": 40}`,
		"wrong type":   `{"score": "high", "reason": "x"}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			var got score
			err := Decode(raw, scoreSchema, &got)
			var perr *ParseError
			require.True(t, errors.As(err, &perr), "expected ParseError, got %v", err)
			assert.Equal(t, raw, perr.Raw)
		})
	}
}

func TestDecodeWithoutSchema(t *testing.T) {
	t.Parallel()

	var links []string
	require.NoError(t, Decode("```\n[\"https://a\"]\n```", nil, &links))
	assert.Equal(t, []string{"https://a"}, links)
}

func TestNewSchemaRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := NewSchema(`{"type": 12}`)
	require.Error(t, err)
	assert.Panics(t, func() { MustSchema("{") })
}

func TestOpenRouterGenerate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "openai/gpt-4o-mini", req.Model)
		assert.InDelta(t, 0.7, req.Temperature, 0.0001)
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "hello", req.Messages[0].Content)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	client := NewOpenRouter(Config{APIKey: "sk-test", Model: "openai/gpt-4o-mini", BaseURL: srv.URL + "/"}, srv.Client())
	out, err := client.Generate(context.Background(), Request{Prompt: "hello", Temperature: 0.7, JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	require.NoError(t, client.Close())
}

func TestOpenRouterErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status int
		body   string
	}{
		"http status": {http.StatusTooManyRequests, `{"error":{"message":"rate limited"}}`},
		"api error":   {http.StatusOK, `{"error":{"message":"bad model"}}`},
		"no choices":  {http.StatusOK, `{"choices":[]}`},
		"bad json":    {http.StatusOK, `not json`},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewOpenRouter(Config{APIKey: "k", Model: "m", BaseURL: srv.URL}, nil)
			_, err := client.Generate(context.Background(), Request{Prompt: "p"})
			require.Error(t, err)
		})
	}
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Provider: ProviderGemini, Model: "m"})
	require.Error(t, err)
	_, err = New(context.Background(), Config{Provider: ProviderGemini, APIKey: "k"})
	require.Error(t, err)
	_, err = New(context.Background(), Config{Provider: "local", APIKey: "k", Model: "m"})
	require.Error(t, err)

	client, err := New(context.Background(), Config{Provider: ProviderOpenRouter, APIKey: "k", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &OpenRouter{}, client)
	assert.Equal(t, defaultOpenRouterURL, client.(*OpenRouter).baseURL)
}

func TestTextFromResponse(t *testing.T) {
	t.Parallel()

	_, err := textFromResponse(&genai.GenerateContentResponse{})
	require.Error(t, err)

	_, err = textFromResponse(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}})
	require.Error(t, err)

	out, err := textFromResponse(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"a":`), genai.Text(`1}`)}},
	}}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
}
