package service

import (
	"math"
	"testing"
	"time"

	appErr "solcheck/pkg/errors"
)

func ptr(f float64) *float64 { return &f }

func TestResolveDefaults(t *testing.T) {
	l := DefaultLimits()
	build, test, err := l.Resolve(nil, ptr(0), 5)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if build != 4*time.Second || test != time.Second {
		t.Fatalf("got build=%v test=%v", build, test)
	}
}

func TestResolveExplicit(t *testing.T) {
	l := DefaultLimits()
	build, test, err := l.Resolve(ptr(2.5), ptr(0.5), 64)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if build != 2500*time.Millisecond || test != 500*time.Millisecond {
		t.Fatalf("got build=%v test=%v", build, test)
	}
}

func TestResolveBuildTooBig(t *testing.T) {
	_, _, err := DefaultLimits().Resolve(ptr(11), nil, 1)
	if !appErr.Is(err, appErr.TimeoutTooLarge) {
		t.Fatalf("expected TimeoutTooLarge, got %v", err)
	}
	want := "buildTimeout is too big, maximum allowed is 10"
	if appErr.GetError(err).Message != want {
		t.Fatalf("message = %q, want %q", appErr.GetError(err).Message, want)
	}
}

func TestResolveTestingBudget(t *testing.T) {
	l := DefaultLimits()
	if _, _, err := l.Resolve(nil, ptr(1), 32); err != nil {
		t.Fatalf("32 tests of 1s must fit, got %v", err)
	}
	_, _, err := l.Resolve(nil, ptr(1), 33)
	if !appErr.Is(err, appErr.TimeoutTooLarge) {
		t.Fatalf("expected TimeoutTooLarge, got %v", err)
	}
	want := "testTimeout is too big, maximum allowed timeout for ALL tests is 32"
	if appErr.GetError(err).Message != want {
		t.Fatalf("message = %q, want %q", appErr.GetError(err).Message, want)
	}
}

func TestResolveNegative(t *testing.T) {
	if _, _, err := DefaultLimits().Resolve(ptr(-1), nil, 1); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, _, err := DefaultLimits().Resolve(nil, ptr(-0.1), 1); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLimitsWithDefaults(t *testing.T) {
	l := Limits{MaxBuildTimeout: 20 * time.Second}.WithDefaults()
	if l.MaxBuildTimeout != 20*time.Second || l.DefaultBuildTimeout != 4*time.Second || l.MaxTestingTimeout != 32*time.Second {
		t.Fatalf("unexpected limits: %+v", l)
	}
}

func TestResolveHugeValues(t *testing.T) {
	l := DefaultLimits()
	cases := []struct {
		name  string
		build *float64
		test  *float64
		tests int
	}{
		{"product overflows", nil, ptr(5e9), 2},
		{"huge build", ptr(1e300), nil, 1},
		{"infinite build", ptr(math.Inf(1)), nil, 1},
		{"infinite test", nil, ptr(math.Inf(1)), 1},
		{"huge test in empty suite", nil, ptr(1e300), 0},
	}
	for _, tc := range cases {
		build, test, err := l.Resolve(tc.build, tc.test, tc.tests)
		if !appErr.Is(err, appErr.TimeoutTooLarge) {
			t.Fatalf("%s: expected TimeoutTooLarge, got build=%v test=%v err=%v", tc.name, build, test, err)
		}
	}
}

func TestResolveNaN(t *testing.T) {
	l := DefaultLimits()
	if _, _, err := l.Resolve(ptr(math.NaN()), nil, 1); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error for NaN build timeout, got %v", err)
	}
	if _, _, err := l.Resolve(nil, ptr(math.NaN()), 1); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error for NaN test timeout, got %v", err)
	}
}
