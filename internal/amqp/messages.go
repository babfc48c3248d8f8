package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Operations carried by PlanChangedMessage.
const (
	OpToggle = "toggle"
	OpSave   = "save"
	OpResync = "resync"
)

// PlanChangedMessage tells consumers that a billing plan was written. It
// carries ids only; consumers reload the plans they need.
type PlanChangedMessage struct {
	ID        string    `json:"id"`
	DocID     string    `json:"doc_id"`
	Operation string    `json:"operation"`
	Years     []int     `json:"years,omitempty"`
	StepIndex *int      `json:"step_index,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewPlanChangedMessage(docID, op string, years []int) *PlanChangedMessage {
	return &PlanChangedMessage{
		ID:        uuid.NewString(),
		DocID:     docID,
		Operation: op,
		Years:     years,
		Timestamp: time.Now().UTC(),
	}
}

// WithStep records the step a toggle touched.
func (m *PlanChangedMessage) WithStep(index int) *PlanChangedMessage {
	m.StepIndex = &index
	return m
}

func (m *PlanChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func PlanChangedMessageFromJSON(data []byte) (*PlanChangedMessage, error) {
	var msg PlanChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.DocID == "" && msg.Operation != OpResync {
		return nil, errors.New("plan changed message without doc_id")
	}
	return &msg, nil
}
