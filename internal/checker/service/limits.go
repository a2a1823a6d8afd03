package service

import (
	"math"
	"strconv"
	"time"

	appErr "solcheck/pkg/errors"
)

// Limits holds default and maximum timeouts for a check.
type Limits struct {
	DefaultBuildTimeout time.Duration `yaml:"defaultBuildTimeout"`
	DefaultTestTimeout  time.Duration `yaml:"defaultTestTimeout"`
	MaxBuildTimeout     time.Duration `yaml:"maxBuildTimeout"`
	// MaxTestingTimeout bounds testTimeout multiplied by the number of tests.
	MaxTestingTimeout time.Duration `yaml:"maxTestingTimeout"`
}

// DefaultLimits returns the stock limits: 4s build, 1s per test, 10s max
// build and 32s for the whole suite.
func DefaultLimits() Limits {
	return Limits{
		DefaultBuildTimeout: 4 * time.Second,
		DefaultTestTimeout:  time.Second,
		MaxBuildTimeout:     10 * time.Second,
		MaxTestingTimeout:   32 * time.Second,
	}
}

// WithDefaults fills zero values from DefaultLimits.
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits()
	if l.DefaultBuildTimeout <= 0 {
		l.DefaultBuildTimeout = d.DefaultBuildTimeout
	}
	if l.DefaultTestTimeout <= 0 {
		l.DefaultTestTimeout = d.DefaultTestTimeout
	}
	if l.MaxBuildTimeout <= 0 {
		l.MaxBuildTimeout = d.MaxBuildTimeout
	}
	if l.MaxTestingTimeout <= 0 {
		l.MaxTestingTimeout = d.MaxTestingTimeout
	}
	return l
}

// Resolve turns requested timeouts in seconds into durations. A nil or zero
// value selects the default. Values above the maximums are rejected.
// Comparisons are made in seconds so huge values cannot overflow a Duration.
func (l Limits) Resolve(buildTimeout, testTimeout *float64, tests int) (build, test time.Duration, err error) {
	buildSeconds := l.DefaultBuildTimeout.Seconds()
	if buildTimeout != nil && *buildTimeout != 0 {
		if !validSeconds(*buildTimeout) {
			return 0, 0, appErr.ValidationError("buildTimeout", "must be a positive number")
		}
		buildSeconds = *buildTimeout
	}
	if buildSeconds > l.MaxBuildTimeout.Seconds() {
		return 0, 0, appErr.Newf(appErr.TimeoutTooLarge,
			"buildTimeout is too big, maximum allowed is %s", formatSeconds(l.MaxBuildTimeout))
	}

	testSeconds := l.DefaultTestTimeout.Seconds()
	if testTimeout != nil && *testTimeout != 0 {
		if !validSeconds(*testTimeout) {
			return 0, 0, appErr.ValidationError("testTimeout", "must be a positive number")
		}
		testSeconds = *testTimeout
	}
	maxTesting := l.MaxTestingTimeout.Seconds()
	// a single test may never exceed the whole budget, even in an empty suite
	if testSeconds > maxTesting || testSeconds*float64(tests) > maxTesting {
		return 0, 0, appErr.Newf(appErr.TimeoutTooLarge,
			"testTimeout is too big, maximum allowed timeout for ALL tests is %s", formatSeconds(l.MaxTestingTimeout))
	}
	return secondsToDuration(buildSeconds), secondsToDuration(testSeconds), nil
}

// validSeconds rejects negative and NaN values. +Inf is left to the maximum
// checks.
func validSeconds(s float64) bool {
	return s > 0 && !math.IsNaN(s)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
