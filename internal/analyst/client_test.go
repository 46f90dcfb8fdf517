package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/analystchat/analystchat/internal/conversation"
)

func TestSendMessagePostsToAnalystPath(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotTokenType string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotTokenType = r.Header.Get("X-Snowflake-Authorization-Token-Type")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{"message":{"role":"analyst","content":[{"type":"text","text":"ok"}]}}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL + "/", Token: "tok", TokenType: "OAUTH"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	_, err = client.SendMessage(context.Background(), BuildRequest(
		[]conversation.Message{conversation.UserQuestion("hi")},
		SemanticModel{Database: "D", Schema: "S", Stage: "T", File: "f.yaml"},
	))
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != MessagePath {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotAuth != "Bearer tok" || gotTokenType != "OAUTH" {
		t.Fatalf("auth headers = %q %q", gotAuth, gotTokenType)
	}
	if gotBody["semantic_model_file"] != "@D.S.T/f.yaml" {
		t.Fatalf("semantic_model_file = %v", gotBody["semantic_model_file"])
	}
}

func TestSendMessageReturnsRemoteRequestErrorOnFailureStatus(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"message":"boom"}`))
		}))

		client, err := NewClient(Config{BaseURL: srv.URL})
		if err != nil {
			t.Fatalf("NewClient() error = %v", err)
		}
		_, err = client.SendMessage(context.Background(), Request{})
		srv.Close()

		var remoteErr *RemoteRequestError
		if !errors.As(err, &remoteErr) {
			t.Fatalf("status %d: error = %v", status, err)
		}
		if remoteErr.StatusCode != status {
			t.Fatalf("StatusCode = %d, want %d", remoteErr.StatusCode, status)
		}
		if remoteErr.RawBody != `{"message":"boom"}` {
			t.Fatalf("RawBody = %q", remoteErr.RawBody)
		}
	}
}

func TestSendMessageDecodesContentUnchanged(t *testing.T) {
	body := `{"request_id":"r-1","message":{"role":"analyst","content":[` +
		`{"type":"text","text":"Total revenue"},` +
		`{"type":"sql","statement":"SELECT SUM(amount) FROM sales"},` +
		`{"type":"suggestions","suggestions":["by month"]}]},` +
		`"warnings":[{"message":"table is large"}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	resp, err := client.SendMessage(context.Background(), Request{})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	want := conversation.Content{
		conversation.Text{Text: "Total revenue"},
		conversation.SQL{Statement: "SELECT SUM(amount) FROM sales"},
		conversation.Suggestions{Items: []string{"by month"}},
	}
	if diff := cmp.Diff(want, resp.Message.Content); diff != "" {
		t.Fatalf("content mismatch (-want +got):\n%s", diff)
	}
	if resp.RequestID != "r-1" {
		t.Fatalf("RequestID = %q", resp.RequestID)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0].Message != "table is large" {
		t.Fatalf("Warnings = %#v", resp.Warnings)
	}
	if string(resp.Raw) != body {
		t.Fatalf("Raw = %s", resp.Raw)
	}
}

func TestSendMessageReturnsDecodeErrorOnMalformedBody(t *testing.T) {
	cases := []struct {
		body  string
		empty bool
	}{
		{body: `{"message":`},
		{body: `{}`, empty: true},
		{body: `null`, empty: true},
		{body: `{"message":null}`, empty: true},
		{body: `{"message":{"role":"analyst","content":[]}}`, empty: true},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(tc.body))
		}))

		client, err := NewClient(Config{BaseURL: srv.URL})
		if err != nil {
			t.Fatalf("NewClient() error = %v", err)
		}
		_, err = client.SendMessage(context.Background(), Request{})
		srv.Close()

		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("body %s: error = %v", tc.body, err)
		}
		if decodeErr.RawBody != tc.body {
			t.Fatalf("body %s: RawBody = %q", tc.body, decodeErr.RawBody)
		}
		if tc.empty != errors.Is(err, ErrEmptyReply) {
			t.Fatalf("body %s: errors.Is(ErrEmptyReply) = %v", tc.body, !tc.empty)
		}
	}
}

func TestSendMessageHonoursTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if _, err := client.SendMessage(context.Background(), Request{}); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}
