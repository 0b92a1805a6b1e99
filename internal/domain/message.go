package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a NotificationMessage. The zero value is Info so
// a message constructed without an explicit level never silently reads as
// more severe than intended.
type Level int

const (
	Info Level = iota
	Warning
	Error
	Critical
)

func (l Level) String() string {
	switch l {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// Levels is every valid Level, in ascending severity order.
var Levels = []Level{Info, Warning, Error, Critical}

// NotificationMessage is a domain event fed into the dispatcher: a risk
// breach, a trade failure, an exchange health change, a circuit-breaker
// transition. Id is assigned once at construction and never changes;
// Acknowledged only ever flips false -> true.
type NotificationMessage struct {
	ID           uuid.UUID
	Level        Level
	Title        string
	Body         string
	ExchangeID   string // optional
	Timestamp    time.Time
	Metadata     map[string]string
	Acknowledged bool
}

// NewNotificationMessage stamps a fresh id and timestamp. Metadata is copied
// defensively so callers can keep mutating their own map afterward.
func NewNotificationMessage(level Level, title, body string, metadata map[string]string) *NotificationMessage {
	m := make(map[string]string, len(metadata))
	for k, v := range metadata {
		m[k] = v
	}
	return &NotificationMessage{
		ID:        uuid.New(),
		Level:     level,
		Title:     title,
		Body:      body,
		Timestamp: time.Now(),
		Metadata:  m,
	}
}

// Acknowledge flips Acknowledged to true. It is a no-op if already true,
// preserving the monotonicity invariant.
func (m *NotificationMessage) Acknowledge() {
	m.Acknowledged = true
}

// wireMessage is the JSON-on-the-wire shape: level as an integer, timestamp
// as milliseconds since epoch, metadata tolerant of absence, acknowledged
// defaulting to false.
type wireMessage struct {
	ID           string            `json:"id"`
	Level        int               `json:"level"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	ExchangeID   string            `json:"exchange_id,omitempty"`
	Timestamp    int64             `json:"timestamp"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Acknowledged bool              `json:"acknowledged"`
}

// MarshalJSON emits all fields in the wire shape.
func (m NotificationMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{
		ID:           m.ID.String(),
		Level:        int(m.Level),
		Title:        m.Title,
		Body:         m.Body,
		ExchangeID:   m.ExchangeID,
		Timestamp:    m.Timestamp.UnixMilli(),
		Metadata:     m.Metadata,
		Acknowledged: m.Acknowledged,
	})
}

// UnmarshalJSON is tolerant of a missing metadata map (-> empty) and a
// missing acknowledged field (-> false).
func (m *NotificationMessage) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	id, err := uuid.Parse(w.ID)
	if err != nil {
		return err
	}

	metadata := w.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	*m = NotificationMessage{
		ID:           id,
		Level:        Level(w.Level),
		Title:        w.Title,
		Body:         w.Body,
		ExchangeID:   w.ExchangeID,
		Timestamp:    time.UnixMilli(w.Timestamp).UTC(),
		Metadata:     metadata,
		Acknowledged: w.Acknowledged,
	}
	return nil
}
