package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"page-match/config"
)

func newTestOpenAIClient(t *testing.T, baseURL string, maxRetries int) LLMClient {
	t.Helper()
	cfg := &config.Config{
		OpenAIAPIKey:         "test-key",
		OpenAIBaseURL:        baseURL,
		OpenAIModel:          "gpt-test",
		OpenAITimeoutSeconds: 5,
		OpenAIMaxRetries:     maxRetries,
	}
	client, err := NewOpenAIClient(cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func responsesBody(text string) string {
	body := map[string]any{
		"output": []map[string]any{
			{
				"type": "message",
				"role": "assistant",
				"content": []map[string]any{
					{"type": "output_text", "text": text},
				},
			},
		},
	}
	raw, _ := json.Marshal(body)
	return string(raw)
}

func TestGenerateStructConformingReply(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v1/responses" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(responsesBody(`{"favoriteGenres":"SF","preferredAuthors":"Herbert","readingLevel":"Advanced","readerSummary":"ok"}`)))
	}))
	defer srv.Close()

	client := newTestOpenAIClient(t, srv.URL, 0)
	var out readerProfileReply
	ok, err := client.GenerateStruct(context.Background(), "sys", "user", "reader_profile", readerProfileSchema(), &out)
	if err != nil || !ok {
		t.Fatalf("GenerateStruct = (%v, %v), want (true, nil)", ok, err)
	}
	if out.FavoriteGenres != "SF" {
		t.Errorf("decoded reply wrong: %+v", out)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("missing auth header, got %q", gotAuth)
	}
}

func TestGenerateStructNonConformingIsNotAnError(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"refusal content part", `{"output":[{"type":"message","role":"assistant","content":[{"type":"refusal","refusal":"cannot help with that"}]}]}`},
		{"no output text", `{"output":[]}`},
		{"undecodable json", responsesBody(`this is not json at all`)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			client := newTestOpenAIClient(t, srv.URL, 0)
			var out readerProfileReply
			ok, err := client.GenerateStruct(context.Background(), "sys", "user", "reader_profile", readerProfileSchema(), &out)
			if err != nil {
				t.Fatalf("non-conforming reply must not be an error: %v", err)
			}
			if ok {
				t.Error("non-conforming reply reported as conforming")
			}
		})
	}
}

func TestGenerateStructRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(responsesBody(`{"favoriteGenres":"SF","preferredAuthors":"","readingLevel":"","readerSummary":""}`)))
	}))
	defer srv.Close()

	client := newTestOpenAIClient(t, srv.URL, 2)
	var out readerProfileReply
	ok, err := client.GenerateStruct(context.Background(), "sys", "user", "reader_profile", readerProfileSchema(), &out)
	if err != nil || !ok {
		t.Fatalf("GenerateStruct = (%v, %v), want recovery after retry", ok, err)
	}
	if attempts != 2 {
		t.Errorf("made %d attempts, want 2", attempts)
	}
}

func TestGenerateStructSurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := newTestOpenAIClient(t, srv.URL, 2)
	var out readerProfileReply
	_, err := client.GenerateStruct(context.Background(), "sys", "user", "reader_profile", readerProfileSchema(), &out)
	if err == nil {
		t.Fatal("400 must surface as a transport error")
	}
}
