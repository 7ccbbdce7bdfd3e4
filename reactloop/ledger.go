package reactloop

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies the author of a ledger entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry in the conversation ledger.
type Message struct {
	ID        int       `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Ledger is the append-only ordered record of all conversation entries for
// one run. Ids are assigned at append time and equal the entry's position,
// so the ledger is a total order with no gaps and no reuse. Only entries
// designated as slots (the system-instructions slot and the task slot) may
// be overwritten after the fact.
type Ledger struct {
	messages []Message
	slots    map[int]bool
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		slots: make(map[int]bool),
	}
}

// Append adds an entry with the next id and returns that id.
func (l *Ledger) Append(role Role, content string) int {
	id := len(l.messages)
	l.messages = append(l.messages, Message{
		ID:        id,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	return id
}

// markSlot designates an existing entry as mutable.
func (l *Ledger) markSlot(id int) {
	l.slots[id] = true
}

// SetSlotContent overwrites the content of a designated slot entry.
// Calling it on an out-of-range id or a non-slot id is a contract
// violation and returns an error rather than being silently tolerated.
func (l *Ledger) SetSlotContent(id int, content string) error {
	if id < 0 || id >= len(l.messages) {
		return fmt.Errorf("ledger: message id %d out of range [0, %d)", id, len(l.messages))
	}
	if !l.slots[id] {
		return fmt.Errorf("ledger: message id %d is not a slot", id)
	}
	l.messages[id].Content = content
	return nil
}

// Get returns the entry with the given id.
func (l *Ledger) Get(id int) (Message, bool) {
	if id < 0 || id >= len(l.messages) {
		return Message{}, false
	}
	return l.messages[id], true
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	return len(l.messages)
}

// Messages returns a copy of all entries in id order.
func (l *Ledger) Messages() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// RenderTranscript concatenates all entries in ascending id order into the
// text shown to the model as the run's history, skipping the excluded ids
// (the system and task slots are injected separately as request framing).
func (l *Ledger) RenderTranscript(exclude ...int) string {
	skip := make(map[int]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	var sb strings.Builder
	for _, msg := range l.messages {
		if skip[msg.ID] {
			continue
		}
		sb.WriteString(renderMessage(msg))
	}
	return sb.String()
}

// renderMessage formats one entry as a transcript block.
func renderMessage(msg Message) string {
	return fmt.Sprintf("----------------------------\n|MESSAGE(role=%q, id=%d)|\n%s\n", msg.Role, msg.ID, msg.Content)
}
