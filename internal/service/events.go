package service

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// GradingEvent is broadcast whenever a submission is created or its
// verdict changes, so downstream consumers can react without polling.
type GradingEvent struct {
	SubmissionID uint      `json:"submission_id"`
	AssignmentID uint      `json:"assignment_id"`
	UserID       uint      `json:"user_id"`
	ProblemType  string    `json:"problem_type"`
	Verdict      string    `json:"verdict"`
	Reviewed     bool      `json:"reviewed"`
	SentAt       time.Time `json:"sent_at"`
}

// GradingEvents publishes grading events to NATS. A nil connection
// turns every publish into a no-op so the API keeps working when the
// broker is not configured.
type GradingEvents struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewGradingEvents constructs the publisher.
func NewGradingEvents(conn *nats.Conn, subject string, logger zerolog.Logger) *GradingEvents {
	if subject == "" {
		subject = "shukudai.grading"
	}

	return &GradingEvents{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "grading_events").Logger(),
	}
}

// Publish sends the event, logging failures instead of surfacing them.
// Delivery is best effort and never blocks the grading path.
func (p *GradingEvents) Publish(event GradingEvent) {
	if p == nil || p.conn == nil {
		return
	}

	event.SentAt = time.Now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to encode grading event")
		return
	}

	if err := p.conn.Publish(p.subject, payload); err != nil {
		p.logger.Warn().Err(err).Uint("submission_id", event.SubmissionID).Msg("failed to publish grading event")
	}
}
