package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 13000-13999: Check & Sandbox errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Storage errors (10400-10499)
	StorageError   ErrorCode = 10400
	ObjectNotFound ErrorCode = 10401

	// Queue errors (10500-10599)
	QueueError ErrorCode = 10500

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Check & Sandbox Errors (13000-13999) ==========

	// Submission (13000-13099)
	SourceArchiveInvalid ErrorCode = 13000
	SourcePathInvalid    ErrorCode = 13001
	SourceTooLarge       ErrorCode = 13002
	TimeoutTooLarge      ErrorCode = 13003

	// Checker (13100-13199)
	JudgeQueueFull   ErrorCode = 13100
	JudgeSystemError ErrorCode = 13101

	// Sandbox (13200-13299)
	SandboxCreateFailed     ErrorCode = 13200
	SandboxFilesystemFailed ErrorCode = 13201
	SandboxExecFailed       ErrorCode = 13202
	SandboxImageUnavailable ErrorCode = 13203
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Cache
	CacheError: "Cache operation failed",

	// Storage
	StorageError:   "Object storage operation failed",
	ObjectNotFound: "Object not found in storage",

	// Queue
	QueueError: "Message queue operation failed",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Submission
	SourceArchiveInvalid: "Unable to parse source code!",
	SourcePathInvalid:    "Source file path is not allowed",
	SourceTooLarge:       "Source code is too large",
	TimeoutTooLarge:      "Requested timeout is too big",

	// Checker
	JudgeQueueFull:   "Checker is busy, please try again later",
	JudgeSystemError: "Checker system error",

	// Sandbox
	SandboxCreateFailed:     "Unable to create sandbox environment!",
	SandboxFilesystemFailed: "Unable to create requested filesystem!",
	SandboxExecFailed:       "Sandbox command failed",
	SandboxImageUnavailable: "Sandbox image is unavailable",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized:
		return 401
	case c == Forbidden:
		return 403
	case c == NotFound, c == ObjectNotFound:
		return 404
	case c == TooManyRequests:
		return 429
	case c == ServiceUnavailable, c == JudgeQueueFull:
		return 503
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == SourcePathInvalid, c == SourceTooLarge, c == TimeoutTooLarge:
		return 400
	default:
		return 500
	}
}
