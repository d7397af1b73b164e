package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var errBoom = errors.New("boom")

func TestDo(t *testing.T) {
	tests := []struct {
		name      string
		policy    Policy
		failures  int
		permanent bool
		wantCalls int
		wantErr   bool
	}{
		{name: "first call succeeds", policy: Policy{Attempts: 3}, failures: 0, wantCalls: 1},
		{name: "succeeds after retries", policy: Policy{Attempts: 3}, failures: 2, wantCalls: 3},
		{name: "attempts exhausted", policy: Policy{Attempts: 3}, failures: 5, wantCalls: 3, wantErr: true},
		{name: "single attempt never retries", policy: Policy{Attempts: 1}, failures: 1, wantCalls: 1, wantErr: true},
		{name: "zero attempts behaves as one", policy: Policy{}, failures: 1, wantCalls: 1, wantErr: true},
		{name: "permanent error stops", policy: Policy{Attempts: 5}, failures: 5, permanent: true, wantCalls: 1, wantErr: true},
		{name: "zero delay retries immediately", policy: Policy{Attempts: 4, Delay: 0}, failures: 3, wantCalls: 4},
		{name: "constant delay", policy: Policy{Attempts: 2, Delay: time.Millisecond}, failures: 1, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), tt.policy, func(context.Context) error {
				calls++
				if calls <= tt.failures {
					if tt.permanent {
						return Permanent(errBoom)
					}
					return errBoom
				}
				return nil
			})

			if diff := cmp.Diff(tt.wantCalls, calls); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
			if tt.wantErr {
				if !errors.Is(err, errBoom) {
					t.Fatalf("expected errBoom, got %v", err)
				}
				var perm *permanentError
				if errors.As(err, &perm) {
					t.Error("returned error must not stay wrapped as permanent")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{Attempts: 10, Delay: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errBoom
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestPermanentNil(t *testing.T) {
	if err := Permanent(nil); err != nil {
		t.Errorf("Permanent(nil) = %v, want nil", err)
	}
}
