package protocol

import "time"

type LogPriority int8

const (
	LogError LogPriority = iota + 1
	LogWarning
	LogInformation
	LogDebug
	LogTrace
)

func (p LogPriority) String() string {
	switch p {
	case LogError:
		return "Error"
	case LogWarning:
		return "Warning"
	case LogInformation:
		return "Information"
	case LogDebug:
		return "Debug"
	case LogTrace:
		return "Trace"
	default:
		return ""
	}
}

// LogEntry is one asynchronous text-log record routed to the caller
// through an attached log queue.
type LogEntry struct {
	Time     time.Time
	QueryID  string
	ThreadID uint64
	Priority LogPriority
	Source   string
	Text     string
}
