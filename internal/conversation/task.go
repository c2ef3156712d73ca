package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TaskPhase tracks where the current coding task sits in its lifecycle.
type TaskPhase int

const (
	// TaskNone means no task is active.
	TaskNone TaskPhase = iota

	// TaskPresented means a task was given and a solution is awaited.
	TaskPresented

	// TaskWaitingConfirmation means the solution was judged correct and the
	// interviewer asked whether to move on.
	TaskWaitingConfirmation
)

// String returns the phase name.
func (p TaskPhase) String() string {
	switch p {
	case TaskNone:
		return "none"
	case TaskPresented:
		return "presented"
	case TaskWaitingConfirmation:
		return "waiting_confirmation"
	default:
		return "unknown"
	}
}

// Task is the active coding exercise.
type Task struct {
	Phase            TaskPhase
	Description      string
	ExpectedSolution string
}

// HelpLevel is the escalation ladder for assistance on the current task.
// It only moves up within a task and resets when a new task is presented.
type HelpLevel int

const (
	// HelpNone means no assistance has been given yet.
	HelpNone HelpLevel = iota

	// HelpHint means a textual hint was given.
	HelpHint

	// HelpCode means a code fragment was shown.
	HelpCode

	// HelpSolution means the full solution was revealed.
	HelpSolution
)

// String returns the level name.
func (l HelpLevel) String() string {
	switch l {
	case HelpNone:
		return "none"
	case HelpHint:
		return "hint"
	case HelpCode:
		return "code"
	case HelpSolution:
		return "solution"
	default:
		return "unknown"
	}
}

// Next returns the level one step up, capped at HelpSolution.
func (l HelpLevel) Next() HelpLevel {
	if l >= HelpSolution {
		return HelpSolution
	}
	return l + 1
}

// Response task states reported by the model inside structured replies.
const (
	RespTaskPresented       = "task_presented"
	RespCheckingSolution    = "checking_solution"
	RespProvidingHint       = "providing_hint"
	RespShowingSolution     = "showing_solution"
	RespWaitingConfirmation = "waiting_confirmation"
	RespNoTask              = "no_task"
)

// AIResponse is the structured reply expected from the language model in
// JSON mode. SpokenText is the only universally mandatory field; the rest
// are mode-dependent and enforced by [validateResponse].
type AIResponse struct {
	SpokenText string `json:"spoken_text"`
	Code       string `json:"code,omitempty"`
	TaskState  string `json:"task_state,omitempty"`
	Hint       string `json:"hint,omitempty"`
	Solution   string `json:"solution,omitempty"`

	// IsCorrect is a pointer so that "absent" and "false" stay
	// distinguishable; solution checks require it to be present.
	IsCorrect *bool `json:"is_correct,omitempty"`
}

// parseResponse decodes a model reply into an AIResponse. Models in JSON
// mode still occasionally wrap the object in a markdown code fence; those
// are stripped before decoding.
func parseResponse(raw string) (*AIResponse, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	var resp AIResponse
	if err := json.Unmarshal([]byte(s), &resp); err != nil {
		return nil, fmt.Errorf("conversation: decode response: %w", err)
	}
	return &resp, nil
}
