package conversation

import (
	"fmt"
	"strings"
)

// Mode selects the system prompt and validation rules for a model call.
// Every turn issues exactly one chat completion in exactly one mode.
type Mode int

const (
	// ModeCheckSolution asks the model to judge the user's solution against
	// the active task.
	ModeCheckSolution Mode = iota

	// ModeGenerateTask asks the model to produce a new coding task.
	ModeGenerateTask

	// ModeAssistHelp asks the model for graded assistance at a given help
	// level.
	ModeAssistHelp

	// ModeLanguageCoach asks the model to correct the candidate's phrasing
	// in a side call before the main turn.
	ModeLanguageCoach
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeCheckSolution:
		return "check_solution"
	case ModeGenerateTask:
		return "generate_task"
	case ModeAssistHelp:
		return "assist_help"
	case ModeLanguageCoach:
		return "language_coach"
	default:
		return "unknown"
	}
}

// responseSchema is appended to every system prompt so that the model
// answers in the structured format [parseResponse] expects.
const responseSchema = `Respond with a single JSON object:
{
  "spoken_text": "what you say out loud (required, plain speech, no markdown)",
  "code": "code to display on screen, or omit",
  "task_state": "one of: task_presented, checking_solution, providing_hint, showing_solution, waiting_confirmation, no_task",
  "hint": "hint text when providing one, or omit",
  "solution": "full solution code when revealing it, or omit",
  "is_correct": true/false when judging a solution, omit otherwise
}
Never put code into spoken_text; spoken_text is synthesized to audio.`

// schemaReminder is appended to the retry prompt after a structurally
// invalid reply.
const schemaReminder = `Your previous reply was missing required fields. Reply again as a single valid JSON object with all required fields for this request. Do not wrap it in markdown fences.`

const basePersona = `You are a friendly but rigorous technical interviewer conducting a spoken mock interview for a software engineering position. Speak naturally and concisely, in %s. Keep spoken replies under four sentences.`

// transcriptionPrompt biases the speech recognizer toward technical
// vocabulary that it otherwise mishears.
const transcriptionPrompt = "Technical interview about programming: algorithm, array, hash map, binary tree, recursion, complexity, O(n), linked list, stack, queue, goroutine, mutex, SQL, index, API."

// buildSystemPrompt assembles the system prompt for a mode, the active
// task, the current help level, and the rolling context summary.
func buildSystemPrompt(mode Mode, language string, task Task, level HelpLevel, contextSummary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, basePersona, language)
	b.WriteString("\n\n")

	switch mode {
	case ModeCheckSolution:
		b.WriteString("The candidate says their solution is ready. Judge it against the task below. Set is_correct. ")
		b.WriteString("If correct: congratulate briefly, ask whether to move to the next task, and set task_state to " + RespWaitingConfirmation + ". ")
		b.WriteString("If wrong: point at the flaw without revealing the fix and set task_state to " + RespCheckingSolution + ".\n\n")
		fmt.Fprintf(&b, "Task: %s\nReference solution: %s", task.Description, task.ExpectedSolution)

	case ModeGenerateTask:
		b.WriteString("React briefly to what the candidate just said, then present one new coding task appropriate for the interview so far. ")
		b.WriteString("Describe the task in spoken_text, put a minimal starting snippet or signature into code, put the reference solution into solution, and set task_state to " + RespTaskPresented + ". ")
		b.WriteString("Do not repeat a task from the recent topics.")

	case ModeAssistHelp:
		b.WriteString("The candidate asked for help with the task below. ")
		switch level {
		case HelpHint:
			b.WriteString("Give a short conceptual hint only, no code. Fill hint and set task_state to " + RespProvidingHint + ".")
		case HelpCode:
			b.WriteString("Give a partial code fragment that unblocks them without solving the task. Fill code and set task_state to " + RespProvidingHint + ".")
		case HelpSolution:
			b.WriteString("Reveal and explain the full solution. Fill solution and set task_state to " + RespShowingSolution + ".")
		}
		fmt.Fprintf(&b, "\n\nTask: %s\nReference solution: %s", task.Description, task.ExpectedSolution)

	case ModeLanguageCoach:
		b.WriteString("Act as a language coach for this turn only. The candidate is not a native speaker; review their last utterance for grammar and phrasing, and put up to two corrections with the fixed phrasing into spoken_text. If it is fine, say so in one sentence. Set task_state to " + RespNoTask + ".")
	}

	if contextSummary != "" {
		b.WriteString("\n\n")
		b.WriteString(contextSummary)
	}

	b.WriteString("\n\n")
	b.WriteString(responseSchema)
	return b.String()
}
