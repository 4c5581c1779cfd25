package domain

import (
	"errors"
	"testing"
)

func TestParseEventKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  EventKind
	}{
		{input: "email.delivered", want: EventDelivered},
		{input: " EMAIL.BOUNCED ", want: EventBounced},
		{input: "email.complained", want: EventComplained},
		{input: "email.opened", want: EventUnknown},
		{input: "", want: EventUnknown},
	}

	for _, tt := range tests {
		if got := ParseEventKind(tt.input); got != tt.want {
			t.Fatalf("ParseEventKind(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestEventKindTargetStatus(t *testing.T) {
	t.Parallel()

	if status, ok := EventDelivered.TargetStatus(); !ok || status != SentEmailStatusDelivered {
		t.Fatalf("EventDelivered.TargetStatus() = %s, %v", status, ok)
	}
	if status, ok := EventBounced.TargetStatus(); !ok || status != SentEmailStatusBounced {
		t.Fatalf("EventBounced.TargetStatus() = %s, %v", status, ok)
	}
	if status, ok := EventComplained.TargetStatus(); !ok || status != SentEmailStatusBounced {
		t.Fatalf("EventComplained.TargetStatus() = %s, %v", status, ok)
	}
	if _, ok := EventUnknown.TargetStatus(); ok {
		t.Fatal("EventUnknown.TargetStatus() should not map to a status")
	}
}

func TestWebhookEventErrorMessage(t *testing.T) {
	t.Parallel()

	bounce := WebhookEvent{Kind: EventBounced, Reason: "mailbox full"}
	if got := bounce.ErrorMessage(); got == nil || *got != "Bounce: mailbox full" {
		t.Fatalf("bounce ErrorMessage() = %v", got)
	}

	complaint := WebhookEvent{Kind: EventComplained, Reason: "ignored"}
	if got := complaint.ErrorMessage(); got == nil || *got != ComplaintReason {
		t.Fatalf("complaint ErrorMessage() = %v", got)
	}

	if got := (WebhookEvent{Kind: EventDelivered}).ErrorMessage(); got != nil {
		t.Fatalf("delivered ErrorMessage() = %q, want nil", *got)
	}
}

func TestWebhookEventValidate(t *testing.T) {
	t.Parallel()

	if err := (WebhookEvent{Kind: EventDelivered}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}
	if err := (WebhookEvent{Kind: EventUnknown}).Validate(); err != nil {
		t.Fatalf("Validate() unknown kind error = %v, want nil", err)
	}
	if err := (WebhookEvent{Kind: EventBounced, ProviderMessageID: "re_1"}).Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}
