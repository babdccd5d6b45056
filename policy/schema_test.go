package policy

import (
	"reflect"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	p := Default("get_profile")
	if p.Command != "get_profile" {
		t.Fatalf("command=%q", p.Command)
	}
	if p.Retry.MaxRetries != 3 || p.Retry.RetryDelay != time.Second || p.Retry.Multiplier != 2 {
		t.Fatalf("retry=%+v, want 3/1s/2", p.Retry)
	}
	if p.Timeout != 0 || p.Circuit.Enabled {
		t.Fatalf("timeout=%v circuit=%v, want none", p.Timeout, p.Circuit.Enabled)
	}

	normalized, err := p.Normalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if normalized.Meta.Normalization.Changed {
		t.Fatalf("default policy should already be normalized, changed=%v", normalized.Meta.Normalization.ChangedFields)
	}
}

func TestPolicyNormalize_DefaultsAndBounds(t *testing.T) {
	p := Policy{
		Timeout: -1,
		Retry: RetryPolicy{
			MaxRetries: -2,
			RetryDelay: -1,
			Multiplier: 0,
			MaxDelay:   -1,
			Jitter:     "",
			Budget:     BudgetRef{Cost: 0},
		},
	}

	normalized, err := p.Normalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if normalized.Retry.MaxRetries != 0 {
		t.Fatalf("maxRetries=%d, want 0", normalized.Retry.MaxRetries)
	}
	if normalized.Retry.RetryDelay != time.Second {
		t.Fatalf("retryDelay=%v, want 1s", normalized.Retry.RetryDelay)
	}
	if normalized.Retry.MaxDelay != 0 {
		t.Fatalf("maxDelay=%v, want 0", normalized.Retry.MaxDelay)
	}
	if normalized.Retry.Multiplier != 2 {
		t.Fatalf("multiplier=%v, want 2", normalized.Retry.Multiplier)
	}
	if normalized.Retry.Jitter != JitterNone {
		t.Fatalf("jitter=%v, want %v", normalized.Retry.Jitter, JitterNone)
	}
	if normalized.Timeout != 0 {
		t.Fatalf("timeout=%v, want 0", normalized.Timeout)
	}
	if normalized.Retry.Budget.Cost != 1 {
		t.Fatalf("budget cost=%d, want 1", normalized.Retry.Budget.Cost)
	}
	if !normalized.Meta.Normalization.Changed {
		t.Fatalf("expected normalization to mark changes")
	}
}

func TestPolicyNormalize_Clamps(t *testing.T) {
	p := Policy{
		Timeout: time.Microsecond,
		Retry: RetryPolicy{
			MaxRetries: 50,
			RetryDelay: time.Microsecond,
			Multiplier: 100,
			MaxDelay:   time.Hour,
			Jitter:     JitterFull,
		},
	}

	normalized, err := p.Normalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if normalized.Retry.MaxRetries != 10 {
		t.Fatalf("maxRetries=%d, want 10", normalized.Retry.MaxRetries)
	}
	if normalized.Retry.RetryDelay != time.Millisecond {
		t.Fatalf("retryDelay=%v, want 1ms", normalized.Retry.RetryDelay)
	}
	if normalized.Retry.Multiplier != 10 {
		t.Fatalf("multiplier=%v, want 10", normalized.Retry.Multiplier)
	}
	if normalized.Retry.MaxDelay != 5*time.Minute {
		t.Fatalf("maxDelay=%v, want 5m", normalized.Retry.MaxDelay)
	}
	if normalized.Timeout != time.Millisecond {
		t.Fatalf("timeout=%v, want 1ms", normalized.Timeout)
	}

	low := Policy{Retry: RetryPolicy{RetryDelay: time.Second, MaxDelay: time.Millisecond, Multiplier: 0.5}}
	normalized, err = low.Normalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if normalized.Retry.MaxDelay != time.Second {
		t.Fatalf("maxDelay=%v, want raised to retryDelay", normalized.Retry.MaxDelay)
	}
	if normalized.Retry.Multiplier != 1 {
		t.Fatalf("multiplier=%v, want 1", normalized.Retry.Multiplier)
	}
}

func TestPolicyNormalize_InvalidJitter(t *testing.T) {
	p := Policy{
		Retry: RetryPolicy{
			MaxRetries: 1,
			RetryDelay: time.Millisecond,
			Multiplier: 1,
			Jitter:     JitterKind("bogus"),
		},
	}

	normalized, err := p.Normalize()
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*NormalizeError); !ok {
		t.Fatalf("expected NormalizeError, got %T", err)
	}
	if !reflect.DeepEqual(normalized, Policy{}) {
		t.Fatalf("expected zero policy on error, got %+v", normalized)
	}
}

func TestPolicyNormalize_Circuit(t *testing.T) {
	p := Default("x")
	p.Circuit = CircuitPolicy{Enabled: true}

	normalized, err := p.Normalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if normalized.Circuit.Threshold != 5 {
		t.Fatalf("threshold=%d, want 5", normalized.Circuit.Threshold)
	}
	if normalized.Circuit.Cooldown != 10*time.Second {
		t.Fatalf("cooldown=%v, want 10s", normalized.Circuit.Cooldown)
	}

	p.Circuit = CircuitPolicy{Enabled: true, Threshold: 2, Cooldown: time.Millisecond}
	normalized, _ = p.Normalize()
	if normalized.Circuit.Cooldown != 100*time.Millisecond {
		t.Fatalf("cooldown=%v, want 100ms", normalized.Circuit.Cooldown)
	}
}

func TestPolicyNormalize_DoesNotAliasChangedFields(t *testing.T) {
	p := Policy{Retry: RetryPolicy{Jitter: JitterNone}}
	p.Meta.Normalization.ChangedFields = make([]string, 0, 8)

	a, _ := p.Normalize()
	b, _ := p.Normalize()
	a.Meta.Normalization.ChangedFields[0] = "mutated"
	if b.Meta.Normalization.ChangedFields[0] == "mutated" {
		t.Fatalf("normalized policies share ChangedFields backing array")
	}
}

func TestParseJitter(t *testing.T) {
	cases := []struct {
		in      string
		want    JitterKind
		wantErr bool
	}{
		{in: "", want: JitterNone},
		{in: "none", want: JitterNone},
		{in: "full", want: JitterFull},
		{in: "equal", want: JitterEqual},
		{in: "random", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseJitter(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseJitter(%q) err=%v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("ParseJitter(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}
