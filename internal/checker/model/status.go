// Package model defines the checker's request, stage result and final result types.
package model

// Status is the outcome code of one check. The numeric values are part of the
// public response contract and must not change.
type Status int

const (
	StatusUnknown          Status = -1
	StatusOK               Status = 0
	StatusChecking         Status = 1
	StatusBuildError       Status = 2
	StatusRuntimeError     Status = 3
	StatusTestError        Status = 4
	StatusLintError        Status = 5
	StatusExecutionTimeout Status = 6
	StatusBuildTimeout     Status = 7
)

var statusNames = map[Status]string{
	StatusUnknown:          "UNKNOWN",
	StatusOK:               "OK",
	StatusChecking:         "CHECKING",
	StatusBuildError:       "BUILD_ERROR",
	StatusRuntimeError:     "RUNTIME_ERROR",
	StatusTestError:        "TEST_ERROR",
	StatusLintError:        "LINT_ERROR",
	StatusExecutionTimeout: "EXECUTION_TIMEOUT",
	StatusBuildTimeout:     "BUILD_TIMEOUT",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return statusNames[StatusUnknown]
}

// OK reports whether the status is StatusOK.
func (s Status) OK() bool {
	return s == StatusOK
}
