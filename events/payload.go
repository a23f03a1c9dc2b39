package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event type tags as they appear in the envelope's "type" field.
const (
	EventSessionCreated     = "SessionCreated"
	EventSessionUpdated     = "SessionUpdated"
	EventSessionDeleted     = "SessionDeleted"
	EventStatusChanged      = "StatusChanged"
	EventSessionProgress    = "SessionProgress"
	EventSessionFailed      = "SessionFailed"
	EventPreferencesUpdated = "PreferencesUpdated"
)

// SessionStatus is the lifecycle state of a Clauderon session.
type SessionStatus string

const (
	StatusCreating  SessionStatus = "Creating"
	StatusDeleting  SessionStatus = "Deleting"
	StatusRunning   SessionStatus = "Running"
	StatusIdle      SessionStatus = "Idle"
	StatusCompleted SessionStatus = "Completed"
	StatusFailed    SessionStatus = "Failed"
	StatusArchived  SessionStatus = "Archived"
)

// Session is the server's session record as carried by SessionCreated and
// SessionUpdated events.
type Session struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Status        SessionStatus `json:"status"`
	Backend       string        `json:"backend"`
	Agent         string        `json:"agent"`
	RepoPath      string        `json:"repo_path"`
	WorktreePath  string        `json:"worktree_path"`
	Subdirectory  string        `json:"subdirectory"`
	BranchName    string        `json:"branch_name"`
	BackendID     string        `json:"backend_id"`
	InitialPrompt string        `json:"initial_prompt"`
	PRURL         string        `json:"pr_url"`
	MergeConflict bool          `json:"merge_conflict"`
	AccessMode    string        `json:"access_mode"`
	ErrorMessage  string        `json:"error_message"`
	Progress      *ProgressStep `json:"progress,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// DisplayName returns the session title when set, otherwise its name.
func (s *Session) DisplayName() string {
	if s.Title != "" {
		return s.Title
	}
	return s.Name
}

// ProgressStep describes one step of a long-running session operation.
type ProgressStep struct {
	Step    int    `json:"step"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// Payload is the decoded form of one domain event. Type is always set;
// the other fields are populated per event type:
//
//	SessionCreated, SessionUpdated    Session
//	SessionDeleted                    SessionID
//	StatusChanged                     SessionID, OldStatus, NewStatus
//	SessionProgress                   SessionID, Progress
//	SessionFailed                     SessionID, Error
//	PreferencesUpdated                Preferences
type Payload struct {
	Type string

	Session   *Session
	SessionID string

	OldStatus SessionStatus
	NewStatus SessionStatus

	Progress *ProgressStep
	Error    string

	// Preferences is kept raw; this package does not model the
	// preferences document.
	Preferences json.RawMessage
}

// Summary renders the payload as one human-readable line.
func (p *Payload) Summary() string {
	switch p.Type {
	case EventSessionCreated:
		return fmt.Sprintf("session %q created (%s)", p.Session.DisplayName(), p.Session.Status)
	case EventSessionUpdated:
		return fmt.Sprintf("session %q updated (%s)", p.Session.DisplayName(), p.Session.Status)
	case EventSessionDeleted:
		return fmt.Sprintf("session %s deleted", p.SessionID)
	case EventStatusChanged:
		return fmt.Sprintf("session %s: %s -> %s", p.SessionID, p.OldStatus, p.NewStatus)
	case EventSessionProgress:
		return fmt.Sprintf("session %s: step %d/%d %s", p.SessionID, p.Progress.Step, p.Progress.Total, p.Progress.Message)
	case EventSessionFailed:
		return fmt.Sprintf("session %s failed: %s", p.SessionID, p.Error)
	case EventPreferencesUpdated:
		return "preferences updated"
	default:
		return p.Type
	}
}

// ParsePayload decodes the raw event JSON delivered to OnEvent listeners
// into a typed Payload. It fails on malformed JSON and on event types it
// does not know; callers tracking a live server should log and skip
// those rather than treat them as fatal.
func ParsePayload(raw json.RawMessage) (*Payload, error) {
	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("event envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("event envelope: missing type")
	}

	p := &Payload{Type: env.Type}
	switch env.Type {
	case EventSessionCreated, EventSessionUpdated:
		var s Session
		if err := json.Unmarshal(env.Payload, &s); err != nil {
			return nil, fmt.Errorf("%s payload: %w", env.Type, err)
		}
		p.Session = &s

	case EventSessionDeleted:
		var body struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(env.Payload, &body); err != nil {
			return nil, fmt.Errorf("%s payload: %w", env.Type, err)
		}
		p.SessionID = body.ID

	case EventStatusChanged:
		var body struct {
			ID  string        `json:"id"`
			Old SessionStatus `json:"old"`
			New SessionStatus `json:"new"`
		}
		if err := json.Unmarshal(env.Payload, &body); err != nil {
			return nil, fmt.Errorf("%s payload: %w", env.Type, err)
		}
		p.SessionID = body.ID
		p.OldStatus = body.Old
		p.NewStatus = body.New

	case EventSessionProgress:
		var body struct {
			ID       string       `json:"id"`
			Progress ProgressStep `json:"progress"`
		}
		if err := json.Unmarshal(env.Payload, &body); err != nil {
			return nil, fmt.Errorf("%s payload: %w", env.Type, err)
		}
		p.SessionID = body.ID
		p.Progress = &body.Progress

	case EventSessionFailed:
		var body struct {
			ID    string `json:"id"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal(env.Payload, &body); err != nil {
			return nil, fmt.Errorf("%s payload: %w", env.Type, err)
		}
		p.SessionID = body.ID
		p.Error = body.Error

	case EventPreferencesUpdated:
		var body struct {
			Preferences json.RawMessage `json:"preferences"`
		}
		if err := json.Unmarshal(env.Payload, &body); err != nil {
			return nil, fmt.Errorf("%s payload: %w", env.Type, err)
		}
		p.Preferences = body.Preferences

	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	return p, nil
}
