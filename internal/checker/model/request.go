package model

import (
	"encoding/json"
	"fmt"
	"time"

	appErr "solcheck/pkg/errors"
)

// TestCase is one (stdin, expected stdout) pair. On the wire it is a
// two-element JSON array.
type TestCase struct {
	Stdin    string
	Expected string
}

func (t TestCase) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{t.Stdin, t.Expected})
}

func (t *TestCase) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("test case must be an array of two strings: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("test case must contain exactly 2 elements, got %d", len(pair))
	}
	t.Stdin, t.Expected = pair[0], pair[1]
	return nil
}

// TestSuite is executed in order and stops at the first failure.
type TestSuite []TestCase

// SourceRef points at a source archive in object storage.
type SourceRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// CheckRequest is one fully resolved check.
type CheckRequest struct {
	CheckID      string
	Source       SourceFileSet
	Tests        TestSuite
	BuildTimeout time.Duration
	TestTimeout  time.Duration
}

// Validate checks the request shape. Makefile contract violations are not
// request errors; they are reported as a BUILD_ERROR result by the checker.
func (r CheckRequest) Validate() error {
	if err := r.Source.Validate(); err != nil {
		return err
	}
	if r.BuildTimeout <= 0 {
		return appErr.ValidationError("buildTimeout", "must be positive")
	}
	if r.TestTimeout <= 0 {
		return appErr.ValidationError("testTimeout", "must be positive")
	}
	return nil
}

// Seconds converts a float number of seconds into a duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
