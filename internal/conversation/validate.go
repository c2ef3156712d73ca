package conversation

import (
	"errors"
	"strings"
)

// Structural validation errors. These never reach the user: an invalid
// reply triggers one retry, then a safe fallback response.
var (
	errNoSpokenText = errors.New("conversation: response has no spoken_text")
	errNoVerdict    = errors.New("conversation: solution check has no is_correct")
	errNoTask       = errors.New("conversation: generated task has no code payload")
	errNoAssistance = errors.New("conversation: help response carries no hint, code or solution")
	errBadTaskState = errors.New("conversation: unknown task_state")
)

// knownTaskStates is the closed set of task_state values the model may emit.
var knownTaskStates = map[string]struct{}{
	RespTaskPresented:       {},
	RespCheckingSolution:    {},
	RespProvidingHint:       {},
	RespShowingSolution:     {},
	RespWaitingConfirmation: {},
	RespNoTask:              {},
	"":                      {},
}

// validateResponse checks the mode-dependent mandatory fields of a parsed
// reply. All violations are joined so the retry prompt can name them.
func validateResponse(mode Mode, resp *AIResponse) error {
	var errs []error

	if strings.TrimSpace(resp.SpokenText) == "" {
		errs = append(errs, errNoSpokenText)
	}
	if _, ok := knownTaskStates[resp.TaskState]; !ok {
		errs = append(errs, errBadTaskState)
	}

	switch mode {
	case ModeCheckSolution:
		if resp.IsCorrect == nil {
			errs = append(errs, errNoVerdict)
		}
	case ModeGenerateTask:
		if strings.TrimSpace(resp.Code) == "" && strings.TrimSpace(resp.Solution) == "" {
			errs = append(errs, errNoTask)
		}
	case ModeAssistHelp:
		if strings.TrimSpace(resp.Hint) == "" &&
			strings.TrimSpace(resp.Code) == "" &&
			strings.TrimSpace(resp.Solution) == "" {
			errs = append(errs, errNoAssistance)
		}
	}

	return errors.Join(errs...)
}

// holdResponse is the canned reply for a non-confirming utterance while a
// next-task offer is pending. It re-prompts without a model call and keeps
// the session in the waiting phase.
func holdResponse(language string) *AIResponse {
	text := "No rush. Just tell me when you want the next task."
	if strings.HasPrefix(strings.ToLower(language), "ru") {
		text = "Не спеши. Скажи, когда будешь готов к следующей задаче."
	}
	return &AIResponse{SpokenText: text, TaskState: RespWaitingConfirmation}
}

// fallbackResponse returns a safe, mode-appropriate reply used after the
// retry also failed validation. Every fallback carries a coherent
// task_state so the task machine never derails on a bad model day.
func fallbackResponse(mode Mode, task Task, language string) *AIResponse {
	ru := strings.HasPrefix(strings.ToLower(language), "ru")

	switch mode {
	case ModeCheckSolution:
		f := false
		text := "I couldn't evaluate that properly. Walk me through your solution once more?"
		if ru {
			text = "Мне не удалось как следует оценить решение. Расскажи его еще раз?"
		}
		return &AIResponse{SpokenText: text, TaskState: RespCheckingSolution, IsCorrect: &f}

	case ModeGenerateTask:
		text := "Let's try a classic: write a function that reverses a string without using built-in reverse helpers."
		if ru {
			text = "Давай классическую задачу: напиши функцию, которая переворачивает строку без встроенных функций разворота."
		}
		return &AIResponse{
			SpokenText: text,
			Code:       "func reverse(s string) string {\n\t// your code here\n}",
			Solution:   "func reverse(s string) string {\n\tr := []rune(s)\n\tfor i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {\n\t\tr[i], r[j] = r[j], r[i]\n\t}\n\treturn string(r)\n}",
			TaskState:  RespTaskPresented,
		}

	case ModeAssistHelp:
		text := "Try breaking the problem into smaller steps and handling the simplest case first."
		if ru {
			text = "Попробуй разбить задачу на шаги и начать с самого простого случая."
		}
		state := RespProvidingHint
		if task.Phase == TaskNone {
			state = RespNoTask
		}
		return &AIResponse{SpokenText: text, Hint: text, TaskState: state}

	default:
		text := "Sorry, I lost my train of thought. Could you say that again?"
		if ru {
			text = "Извини, я потерял мысль. Повтори, пожалуйста?"
		}
		state := RespNoTask
		if task.Phase == TaskPresented {
			state = RespTaskPresented
		}
		return &AIResponse{SpokenText: text, TaskState: state}
	}
}
