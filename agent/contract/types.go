package contract

import (
	"strings"
	"time"
)

type Role string

const (
	RoleGuest Role = "guest"
	RoleStaff Role = "staff"
)

func (r Role) rank() int {
	switch r {
	case RoleGuest:
		return 1
	case RoleStaff:
		return 2
	default:
		return 0
	}
}

func (r Role) Valid() bool {
	return r.rank() > 0
}

// Allows reports whether r meets the minimum role. Unknown roles allow nothing.
func (r Role) Allows(min Role) bool {
	return r.Valid() && min.Valid() && r.rank() >= min.rank()
}

func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldInteger FieldType = "integer"
	FieldBoolean FieldType = "boolean"
)

type Field struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
}

// Capability describes one operation the model may propose.
type Capability struct {
	Name        string  `json:"name"`
	MinRole     Role    `json:"min_role"`
	Description string  `json:"description"`
	Fields      []Field `json:"fields,omitempty"`
}

func (c Capability) Field(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

type Session struct {
	ID       string       `json:"id"`
	Identity string       `json:"identity"`
	Name     string       `json:"name"`
	Role     Role         `json:"role"`
	Menu     []Capability `json:"menu"`
}

type TurnRole string

const (
	TurnUser        TurnRole = "user"
	TurnAssistant   TurnRole = "assistant"
	TurnObservation TurnRole = "observation"
)

type Turn struct {
	Role    TurnRole `json:"role"`
	Content string   `json:"content,omitempty"`
	Actions []Action `json:"actions,omitempty"`
	CallID  string   `json:"call_id,omitempty"`
	Tool    string   `json:"tool,omitempty"`
}

type Action struct {
	CallID string         `json:"call_id,omitempty"`
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
	// Malformed carries the decode error when the proposed arguments were
	// not a JSON object. Such actions are rejected without executing.
	Malformed string `json:"-"`
}

type DecisionRequest struct {
	Session      Session `json:"session"`
	Conversation []Turn  `json:"conversation"`
	Today        time.Time
}

// Decision is either a non-empty list of actions or a final answer.
type Decision struct {
	Actions []Action `json:"actions,omitempty"`
	Answer  string   `json:"answer,omitempty"`
}

func (d Decision) IsFinal() bool {
	return len(d.Actions) == 0
}

type ToolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

type RetrievedChunk struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}
