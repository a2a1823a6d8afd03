package model

import (
	"encoding/json"
	"math"
	"time"
)

// BuildResult is the outcome of the build stage.
type BuildResult struct {
	Status  Status
	Elapsed time.Duration
	Message string
}

// TestResult is the outcome of a single test case.
type TestResult struct {
	Status  Status
	Elapsed time.Duration
	Message string
}

// TestsResult aggregates the test stage. Elapsed covers attempted tests only.
type TestsResult struct {
	Status      Status
	Elapsed     time.Duration
	Message     string
	TestsPassed int
	TestsTotal  int
}

// LintResult is the outcome of the lint stage.
type LintResult struct {
	Success bool
	Message string
}

// CheckResult is the final answer for one check.
type CheckResult struct {
	Status      Status
	BuildTime   time.Duration
	TestsTime   time.Duration
	Message     string
	TestsPassed int
	TestsTotal  int
	LintSuccess bool
}

// checkResultJSON keeps the legacy field names existing consumers read.
// testsTime and status duplicate checkTime and checkResult.
type checkResultJSON struct {
	CheckTime    float64 `json:"checkTime"`
	TestsTime    float64 `json:"testsTime"`
	BuildTime    float64 `json:"buildTime"`
	CheckResult  Status  `json:"checkResult"`
	Status       Status  `json:"status"`
	CheckMessage string  `json:"checkMessage"`
	TestsPassed  int     `json:"testsPassed"`
	TestsTotal   int     `json:"testsTotal"`
	LintSuccess  bool    `json:"lintSuccess"`
}

func (r CheckResult) MarshalJSON() ([]byte, error) {
	testsTime := roundSeconds(r.TestsTime)
	return json.Marshal(checkResultJSON{
		CheckTime:    testsTime,
		TestsTime:    testsTime,
		BuildTime:    roundSeconds(r.BuildTime),
		CheckResult:  r.Status,
		Status:       r.Status,
		CheckMessage: r.Message,
		TestsPassed:  r.TestsPassed,
		TestsTotal:   r.TestsTotal,
		LintSuccess:  r.LintSuccess,
	})
}

func (r *CheckResult) UnmarshalJSON(data []byte) error {
	var raw checkResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = CheckResult{
		Status:      raw.CheckResult,
		BuildTime:   Seconds(raw.BuildTime),
		TestsTime:   Seconds(raw.CheckTime),
		Message:     raw.CheckMessage,
		TestsPassed: raw.TestsPassed,
		TestsTotal:  raw.TestsTotal,
		LintSuccess: raw.LintSuccess,
	}
	return nil
}

// roundSeconds reports d in seconds rounded to four decimals.
func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1e4) / 1e4
}
