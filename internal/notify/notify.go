package notify

import (
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"
)

// Severity of a user-facing notice (toast).
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

const DefaultDuration = 3 * time.Second

type Notice struct {
	Message   string
	Severity  Severity
	Duration  time.Duration
	CreatedAt time.Time
}

type noticeJSON struct {
	Message    string    `json:"message"`
	Severity   Severity  `json:"severity"`
	DurationMs int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (n Notice) MarshalJSON() ([]byte, error) {
	return json.Marshal(noticeJSON{
		Message:    n.Message,
		Severity:   n.Severity,
		DurationMs: n.Duration.Milliseconds(),
		CreatedAt:  n.CreatedAt,
	})
}

//go:generate mockgen -source=$GOFILE -destination=../reports/notify_mocks_test.go -package=reports_test

// Sink is a fire-and-forget notification target; Notify must never block
// the caller on delivery.
type Sink interface {
	Notify(notice Notice)
}

// New builds a notice with the default duration when none is given.
func New(message string, severity Severity, duration ...time.Duration) Notice {
	d := DefaultDuration
	if len(duration) > 0 && duration[0] > 0 {
		d = duration[0]
	}
	return Notice{
		Message:   message,
		Severity:  severity,
		Duration:  d,
		CreatedAt: time.Now(),
	}
}

// LogSink writes notices to the logrus logger.
type LogSink struct{}

func (LogSink) Notify(notice Notice) {
	switch notice.Severity {
	case SeverityError:
		log.Errorf("notice: %s", notice.Message)
	case SeverityWarning:
		log.Warnf("notice: %s", notice.Message)
	default:
		log.Infof("notice: %s", notice.Message)
	}
}

// Fanout delivers every notice to all of its sinks.
type Fanout []Sink

func (f Fanout) Notify(notice Notice) {
	for _, s := range f {
		if s != nil {
			s.Notify(notice)
		}
	}
}

type discard struct{}

func (discard) Notify(Notice) {}

// Discard drops all notices.
var Discard Sink = discard{}
