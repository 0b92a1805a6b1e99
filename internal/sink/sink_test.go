package sink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePushPort struct {
	resp PushResponse
	err  error
}

func (f *fakePushPort) Send(ctx context.Context, req PushRequest) (PushResponse, error) {
	return f.resp, f.err
}

func TestPushSink_Send(t *testing.T) {
	cases := []struct {
		name       string
		port       fakePushPort
		wantResult Result
	}{
		{
			name:       "delivered",
			port:       fakePushPort{resp: PushResponse{Delivered: true}},
			wantResult: Result{Delivered: true},
		},
		{
			name:       "transport error is transient",
			port:       fakePushPort{err: errors.New("dial timeout")},
			wantResult: Result{Failure: FailureTransient},
		},
		{
			name:       "invalid token is terminal",
			port:       fakePushPort{resp: PushResponse{TokenInvalid: true}},
			wantResult: Result{Failure: FailureInvalidRecipient, TokenInvalid: true},
		},
		{
			name:       "not delivered without error is transient",
			port:       fakePushPort{resp: PushResponse{Delivered: false}},
			wantResult: Result{Failure: FailureTransient},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewPushSink(&tc.port)
			got := s.Send(context.Background(), Envelope{Token: "tok"})
			if got.Delivered != tc.wantResult.Delivered || got.Failure != tc.wantResult.Failure || got.TokenInvalid != tc.wantResult.TokenInvalid {
				t.Fatalf("got %+v, want %+v", got, tc.wantResult)
			}
		})
	}
}

type fakeWebhookPort struct {
	resp WebhookResponse
	err  error
}

func (f *fakeWebhookPort) Send(ctx context.Context, req WebhookRequest) (WebhookResponse, error) {
	return f.resp, f.err
}

func TestWebhookSink_ClassifiesByStatusCode(t *testing.T) {
	cases := []struct {
		status int
		want   FailureKind
	}{
		{200, FailureNone},
		{204, FailureNone},
		{429, FailureRateLimited},
		{404, FailurePermanent},
		{400, FailurePermanent},
		{500, FailureTransient},
	}

	for _, tc := range cases {
		port := &fakeWebhookPort{resp: WebhookResponse{StatusCode: tc.status}}
		s := NewWebhookSink(port)
		got := s.Send(context.Background(), Envelope{URL: "https://example.test/hook"})
		if got.Failure != tc.want {
			t.Fatalf("status %d: failure = %q, want %q", tc.status, got.Failure, tc.want)
		}
		if tc.want == FailureNone && !got.Delivered {
			t.Fatalf("status %d: expected Delivered true", tc.status)
		}
	}
}

func TestWebhookSink_TransportErrorIsTransient(t *testing.T) {
	port := &fakeWebhookPort{err: errors.New("connection refused")}
	s := NewWebhookSink(port)
	got := s.Send(context.Background(), Envelope{URL: "https://example.test/hook"})
	if got.Failure != FailureTransient {
		t.Fatalf("failure = %q, want transient", got.Failure)
	}
}

func TestLogSink_AlwaysDelivers(t *testing.T) {
	s := NewLogSink(discardLogger())
	got := s.Send(context.Background(), Envelope{Subject: "hi"})
	if !got.Delivered {
		t.Fatal("log sink should always report delivered")
	}
}
