package protocol

import (
	"fmt"
	"runtime"
)

// Error codes shared with the networked protocol.
const (
	CodeUnknownTable      int32 = 60
	CodeSyntaxError       int32 = 62
	CodeUnknownIdentifier int32 = 47
	CodeLogicalError      int32 = 49
	CodeTypeMismatch      int32 = 53
	CodeQueryWasCancelled int32 = 394
	CodeUnknownPacket     int32 = 100
)

// Exception is a query failure stored as a value inside the execution
// state and delivered as a single Exception packet. The poll boundary is
// re-entered repeatedly by the caller, so failures never unwind across it.
type Exception struct {
	Code       int32
	Name       string
	Message    string
	StackTrace string
}

func (e *Exception) Error() string {
	return fmt.Sprintf("%s (code %d): %s", e.Name, e.Code, e.Message)
}

func NewException(code int32, err error) *Exception {

	if ex, ok := err.(*Exception); ok {
		return ex
	}

	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)

	return &Exception{
		Code:       code,
		Name:       exceptionName(code),
		Message:    err.Error(),
		StackTrace: string(buf[:n]),
	}
}

func exceptionName(code int32) string {
	switch code {
	case CodeUnknownTable:
		return "UNKNOWN_TABLE"
	case CodeSyntaxError:
		return "SYNTAX_ERROR"
	case CodeUnknownIdentifier:
		return "UNKNOWN_IDENTIFIER"
	case CodeLogicalError:
		return "LOGICAL_ERROR"
	case CodeTypeMismatch:
		return "TYPE_MISMATCH"
	case CodeQueryWasCancelled:
		return "QUERY_WAS_CANCELLED"
	default:
		return "UNKNOWN"
	}
}
