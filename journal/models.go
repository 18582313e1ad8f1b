package journal

import "time"

// Timeline event types.
const (
	EventDogIntake        = "DOG_INTAKE"
	EventDogStatusChanged = "DOG_STATUS_CHANGED"
	EventRequestSubmitted = "REQUEST_SUBMITTED"
	EventRequestAccepted  = "REQUEST_ACCEPTED"
	EventRequestRejected  = "REQUEST_REJECTED"
	EventRequestCascaded  = "REQUEST_CASCADE_REJECTED"
	EventCaptureFiled     = "CAPTURE_FILED"
	EventCaptureResolved  = "CAPTURE_RESOLVED"
)

// Outbox topics.
const (
	TopicDogCreated       = "dog.created"
	TopicDogStatusChanged = "dog.status_changed"
	TopicRequestSubmitted = "request.submitted"
	TopicRequestResolved  = "request.resolved"
	TopicCaptureFiled     = "capture.filed"
	TopicCaptureResolved  = "capture.resolved"
)

// Entry is an append-only timeline record. Exactly one of the subject ids is
// usually set; DogID is also set on request events so per-dog history is a
// single query.
type Entry struct {
	DogID     string
	RequestID string
	CaptureID string
	Type      string
	ActorID   string
	Payload   map[string]any
}

// Event is a persisted timeline row.
type Event struct {
	ID        int64
	DogID     *string
	RequestID *string
	CaptureID *string
	Type      string
	ActorID   *string
	Payload   []byte
	CreatedAt time.Time
}

// OutboxStatus tracks relay progress.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxProcessed OutboxStatus = "processed"
	OutboxDead      OutboxStatus = "dead"
)

// OutboxMessage represents a transactional outbox entry.
type OutboxMessage struct {
	ID        string
	Topic     string
	Payload   []byte
	Status    OutboxStatus
	Attempts  int
	CreatedAt time.Time
}
