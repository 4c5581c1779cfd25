package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kursadbilgin/campaign-mailer/internal/domain"
)

func testMessage() domain.OutboundMessage {
	return domain.OutboundMessage{
		To:      "a@x.com",
		ToName:  "Ada Lovelace",
		Subject: "Spring launch",
		HTML:    "<p>Hello <b>Ada</b></p><p>See you &amp; bye</p>",
	}
}

func newTestResendProvider(t *testing.T, baseURL string) *ResendProvider {
	t.Helper()

	p, err := NewResendProvider(ResendConfig{
		APIKey:  "re_test",
		BaseURL: baseURL,
		From:    "Campaign Mailer <noreply@example.com>",
		ReplyTo: "support@example.com",
	})
	if err != nil {
		t.Fatalf("NewResendProvider() error = %v", err)
	}
	return p
}

func TestResendProviderSendSuccess(t *testing.T) {
	t.Parallel()

	var gotBody resendRequest
	var gotAuth, gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path

		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"re_msg_1"}`))
	}))
	defer server.Close()

	p := newTestResendProvider(t, server.URL)

	resp, err := p.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	if resp.MessageID != "re_msg_1" {
		t.Fatalf("MessageID = %q, want %q", resp.MessageID, "re_msg_1")
	}
	if gotAuth != "Bearer re_test" {
		t.Fatalf("Authorization = %q, want %q", gotAuth, "Bearer re_test")
	}
	if gotPath != "/emails" {
		t.Fatalf("path = %q, want /emails", gotPath)
	}
	if len(gotBody.To) != 1 || gotBody.To[0] != `"Ada Lovelace" <a@x.com>` {
		t.Fatalf("request.to = %v", gotBody.To)
	}
	if gotBody.From != "Campaign Mailer <noreply@example.com>" {
		t.Fatalf("request.from = %q", gotBody.From)
	}
	if gotBody.ReplyTo != "support@example.com" {
		t.Fatalf("request.reply_to = %q", gotBody.ReplyTo)
	}
	if gotBody.Text != "Hello Ada\n\nSee you & bye" {
		t.Fatalf("request.text = %q", gotBody.Text)
	}
}

func TestResendProviderSendMessageOverrides(t *testing.T) {
	t.Parallel()

	var gotBody resendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"id":"re_msg_2"}`))
	}))
	defer server.Close()

	p := newTestResendProvider(t, server.URL)

	msg := testMessage()
	msg.From = "Sales <sales@example.com>"
	msg.Text = "plain body"
	msg.Attachments = []domain.Attachment{{Filename: "brochure.pdf", Content: "aGVsbG8=", ContentType: "application/pdf"}}

	if _, err := p.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}
	if gotBody.From != msg.From {
		t.Fatalf("request.from = %q, want %q", gotBody.From, msg.From)
	}
	if gotBody.Text != "plain body" {
		t.Fatalf("request.text = %q, want %q", gotBody.Text, "plain body")
	}
	if len(gotBody.Attachments) != 1 || gotBody.Attachments[0].Filename != "brochure.pdf" {
		t.Fatalf("request.attachments = %+v", gotBody.Attachments)
	}
}

func TestResendProviderBuildRequestQuotesDisplayName(t *testing.T) {
	t.Parallel()

	p := newTestResendProvider(t, "http://127.0.0.1")

	tests := []struct {
		name   string
		toName string
	}{
		{name: "comma", toName: "Doe, John"},
		{name: "quote", toName: `John "JJ" Doe`},
		{name: "angle brackets", toName: "Ops <team>"},
		{name: "non ascii", toName: "Zoë Öztürk"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg := testMessage()
			msg.To = "john@x.com"
			msg.ToName = tt.toName

			req := p.buildRequest(msg)
			if len(req.To) != 1 {
				t.Fatalf("request.to = %v, want one recipient", req.To)
			}

			list, err := mail.ParseAddressList(req.To[0])
			if err != nil {
				t.Fatalf("ParseAddressList(%q) error = %v", req.To[0], err)
			}
			if len(list) != 1 {
				t.Fatalf("ParseAddressList(%q) = %d addresses, want 1", req.To[0], len(list))
			}
			if list[0].Address != "john@x.com" || list[0].Name != tt.toName {
				t.Fatalf("parsed = %+v, want name %q at john@x.com", list[0], tt.toName)
			}
		})
	}
}

func TestResendProviderSendNonJSONErrorBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>upstream unavailable</html>"))
	}))
	defer server.Close()

	p := newTestResendProvider(t, server.URL)

	_, err := p.Send(context.Background(), testMessage())
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("Send() error = %v, want *ProviderError", err)
	}
	if perr.StatusCode != http.StatusBadGateway || !perr.Transient {
		t.Fatalf("error = %+v, want transient 502", perr)
	}
	if !strings.Contains(perr.Message, "upstream unavailable") {
		t.Fatalf("message = %q, want raw body", perr.Message)
	}
}

func TestResendProviderSendMissingIDIsPermanent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	p := newTestResendProvider(t, server.URL)

	_, err := p.Send(context.Background(), testMessage())
	if err == nil {
		t.Fatal("expected error for missing message id")
	}
	if IsTransient(err) {
		t.Fatal("IsTransient() = true, want false")
	}
}

func TestResendProviderSendStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		body          string
		wantTransient bool
		wantMessage   string
	}{
		{name: "too many requests is transient", statusCode: http.StatusTooManyRequests, body: `{"message":"Too many requests"}`, wantTransient: true, wantMessage: "Too many requests"},
		{name: "validation error is permanent", statusCode: http.StatusUnprocessableEntity, body: `{"statusCode":422,"message":"Invalid to field","name":"validation_error"}`, wantMessage: "Invalid to field"},
		{name: "application error name is transient", statusCode: http.StatusBadRequest, body: `{"message":"try again","name":"application_error"}`, wantTransient: true, wantMessage: "try again"},
		{name: "internal server error is transient", statusCode: http.StatusInternalServerError, body: "boom", wantTransient: true, wantMessage: "provider returned status 500: boom"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			p := newTestResendProvider(t, server.URL)

			_, err := p.Send(context.Background(), testMessage())
			if err == nil {
				t.Fatal("expected error")
			}

			if got := IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.wantTransient)
			}

			var providerErr *ProviderError
			if !errors.As(err, &providerErr) {
				t.Fatalf("expected ProviderError, got %T", err)
			}
			if providerErr.StatusCode != tc.statusCode {
				t.Fatalf("ProviderError.StatusCode = %d, want %d", providerErr.StatusCode, tc.statusCode)
			}
			if providerErr.Message != tc.wantMessage {
				t.Fatalf("ProviderError.Message = %q, want %q", providerErr.Message, tc.wantMessage)
			}
		})
	}
}

func TestResendProviderSendTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"id":"late"}`))
	}))
	defer server.Close()

	client := resty.New()
	client.SetTimeout(30 * time.Millisecond)

	p, err := NewResendProviderWithClient(ResendConfig{APIKey: "re_test", BaseURL: server.URL, From: "noreply@example.com"}, client)
	if err != nil {
		t.Fatalf("NewResendProviderWithClient() error = %v", err)
	}

	_, err = p.Send(context.Background(), testMessage())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTransient(err) {
		t.Fatalf("IsTransient() = false, want true (err=%v)", err)
	}
}

func TestResendProviderSendInvalidMessage(t *testing.T) {
	t.Parallel()

	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	p := newTestResendProvider(t, server.URL)

	msg := testMessage()
	msg.To = "not-an-address"
	_, err := p.Send(context.Background(), msg)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Send() error = %v, want ErrValidation", err)
	}
	if called {
		t.Fatal("provider endpoint should not be called for invalid messages")
	}
}

func TestNewResendProviderRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewResendProvider(ResendConfig{From: "noreply@example.com"})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("NewResendProvider() error = %v, want ErrConfiguration", err)
	}
}

func TestFailureReason(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "validation", err: domain.ErrValidation, want: "invalid_message"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "rejected", err: &ProviderError{StatusCode: 422}, want: "provider_rejected"},
		{name: "unavailable", err: &ProviderError{StatusCode: 503, Transient: true}, want: "provider_unavailable"},
		{name: "rate limited", err: &ProviderError{StatusCode: 429, Transient: true}, want: "rate_limited"},
		{name: "unreachable", err: &ProviderError{Transient: true}, want: "provider_unreachable"},
		{name: "other", err: errors.New("boom"), want: "internal"},
	}

	for _, tc := range testCases {
		if got := FailureReason(tc.err); got != tc.want {
			t.Fatalf("%s: FailureReason() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestProviderErrorString(t *testing.T) {
	t.Parallel()

	err := newHTTPError(http.StatusUnprocessableEntity, " validation_error ", "Invalid to field")
	if got, want := err.Error(), "resend 422 validation_error: Invalid to field"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if err.Transient {
		t.Fatal("validation_error should be permanent")
	}

	wrapped := &ProviderError{Message: "provider request failed", Cause: context.DeadlineExceeded}
	if got, want := wrapped.Error(), "resend: provider request failed: context deadline exceeded"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(wrapped, context.DeadlineExceeded) {
		t.Fatal("ProviderError should unwrap to its cause")
	}
}
