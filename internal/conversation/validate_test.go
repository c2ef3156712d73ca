package conversation

import "testing"

func boolPtr(b bool) *bool { return &b }

func TestValidateResponse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mode    Mode
		resp    AIResponse
		wantErr bool
	}{
		{
			name: "coaching valid",
			mode: ModeLanguageCoach,
			resp: AIResponse{SpokenText: "say it this way", TaskState: RespNoTask},
		},
		{
			name:    "missing spoken text",
			mode:    ModeLanguageCoach,
			resp:    AIResponse{TaskState: RespNoTask},
			wantErr: true,
		},
		{
			name:    "unknown task state",
			mode:    ModeLanguageCoach,
			resp:    AIResponse{SpokenText: "hi", TaskState: "daydreaming"},
			wantErr: true,
		},
		{
			name: "empty task state allowed",
			mode: ModeLanguageCoach,
			resp: AIResponse{SpokenText: "hi"},
		},
		{
			name:    "generated task without code payload",
			mode:    ModeGenerateTask,
			resp:    AIResponse{SpokenText: "here is a task", TaskState: RespTaskPresented},
			wantErr: true,
		},
		{
			name: "generated task with code",
			mode: ModeGenerateTask,
			resp: AIResponse{SpokenText: "here is a task", Code: "func f() {}", TaskState: RespTaskPresented},
		},
		{
			name: "generated task with solution only",
			mode: ModeGenerateTask,
			resp: AIResponse{SpokenText: "here is a task", Solution: "func f() {}", TaskState: RespTaskPresented},
		},
		{
			name:    "solution check without verdict",
			mode:    ModeCheckSolution,
			resp:    AIResponse{SpokenText: "looks fine", TaskState: RespCheckingSolution},
			wantErr: true,
		},
		{
			name: "solution check with explicit false verdict",
			mode: ModeCheckSolution,
			resp: AIResponse{SpokenText: "not quite", TaskState: RespCheckingSolution, IsCorrect: boolPtr(false)},
		},
		{
			name:    "help without any assistance",
			mode:    ModeAssistHelp,
			resp:    AIResponse{SpokenText: "good luck", TaskState: RespProvidingHint},
			wantErr: true,
		},
		{
			name: "help with hint only",
			mode: ModeAssistHelp,
			resp: AIResponse{SpokenText: "try recursion", Hint: "try recursion", TaskState: RespProvidingHint},
		},
		{
			name: "help with solution",
			mode: ModeAssistHelp,
			resp: AIResponse{SpokenText: "here it is", Solution: "func f() {}", TaskState: RespShowingSolution},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateResponse(tt.mode, &tt.resp)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateResponse(%v, %+v) = %v, wantErr %v", tt.mode, tt.resp, err, tt.wantErr)
			}
		})
	}
}

func TestFallbackResponse_AlwaysValid(t *testing.T) {
	t.Parallel()
	task := Task{Phase: TaskPresented, Description: "reverse a list"}
	for _, mode := range []Mode{ModeCheckSolution, ModeGenerateTask, ModeAssistHelp, ModeLanguageCoach} {
		resp := fallbackResponse(mode, task, "English")
		if err := validateResponse(mode, resp); err != nil {
			t.Errorf("fallback for %v fails its own validation: %v", mode, err)
		}
	}
}

func TestFallbackResponse_SolutionCheckNeverPasses(t *testing.T) {
	t.Parallel()
	resp := fallbackResponse(ModeCheckSolution, Task{Phase: TaskPresented}, "English")
	if resp.IsCorrect == nil || *resp.IsCorrect {
		t.Error("a fallback verdict must never mark the solution correct")
	}
}

func TestFallbackResponse_Localized(t *testing.T) {
	t.Parallel()
	en := fallbackResponse(ModeGenerateTask, Task{}, "English")
	ru := fallbackResponse(ModeGenerateTask, Task{}, "Russian")
	if en.SpokenText == ru.SpokenText {
		t.Error("fallback should follow the interview language")
	}
}

func TestHoldResponse_KeepsWaitingPhase(t *testing.T) {
	t.Parallel()
	for _, lang := range []string{"English", "Russian"} {
		resp := holdResponse(lang)
		if resp.TaskState != RespWaitingConfirmation {
			t.Errorf("hold response for %s has task state %q", lang, resp.TaskState)
		}
		if resp.SpokenText == "" {
			t.Errorf("hold response for %s is silent", lang)
		}
	}
}
