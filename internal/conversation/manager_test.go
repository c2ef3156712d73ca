package conversation_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/XMaster-Denis/mock-tech-interview-ai/internal/conversation"
	"github.com/XMaster-Denis/mock-tech-interview-ai/internal/ui"
	"github.com/XMaster-Denis/mock-tech-interview-ai/pkg/audio"
	asrmock "github.com/XMaster-Denis/mock-tech-interview-ai/pkg/provider/asr/mock"
	"github.com/XMaster-Denis/mock-tech-interview-ai/pkg/provider/llm"
	llmmock "github.com/XMaster-Denis/mock-tech-interview-ai/pkg/provider/llm/mock"
	ttsmock "github.com/XMaster-Denis/mock-tech-interview-ai/pkg/provider/tts/mock"
)

// fakeAudio records Speak and listening transitions.
type fakeAudio struct {
	mu      sync.Mutex
	clips   []spoken
	resumed int
}

type spoken struct {
	clip            []byte
	interruptible   bool
	skipSpeechCheck bool
}

func (f *fakeAudio) Speak(clip []byte, canBeInterrupted, skipSpeechCheck bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clips = append(f.clips, spoken{clip: clip, interruptible: canBeInterrupted, skipSpeechCheck: skipSpeechCheck})
}

func (f *fakeAudio) StartListening() {}
func (f *fakeAudio) StopListening()  {}
func (f *fakeAudio) ResumeListening() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumed++
}

func (f *fakeAudio) spokenClips() []spoken {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]spoken, len(f.clips))
	copy(out, f.clips)
	return out
}

func (f *fakeAudio) resumeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resumed
}

type fixture struct {
	asr   *asrmock.Provider
	chat  *llmmock.Provider
	tts   *ttsmock.Provider
	audio *fakeAudio
	sink  *ui.Recorder
	mgr   *conversation.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, conversation.StaticSettings{Language: "English", AllowInterruption: true})
}

func newFixtureWith(t *testing.T, settings conversation.StaticSettings) *fixture {
	t.Helper()
	f := &fixture{
		asr:   asrmock.New(),
		chat:  llmmock.New(),
		tts:   ttsmock.New(),
		audio: &fakeAudio{},
		sink:  &ui.Recorder{},
	}
	f.mgr = conversation.New(conversation.DefaultConfig(),
		f.asr, f.chat, f.tts, f.audio, f.sink, settings,
	)
	return f
}

// validSegment passes the manager's second-stage gate.
func validSegment() audio.Segment {
	return audio.Segment{Duration: 2 * time.Second, RMS: 0.2, PCM: []byte("pcm")}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

// runTurn drives one complete turn and waits for its playback request.
func (f *fixture) runTurn(t *testing.T, transcript string) {
	t.Helper()
	f.asr.Enqueue(transcript)
	before := len(f.audio.spokenClips())
	f.mgr.HandleSegment(context.Background(), validSegment())
	waitFor(t, func() bool { return len(f.audio.spokenClips()) > before }, "turn never reached playback")
	f.mgr.HandleTTSCompleted()
}

const presentTaskReply = `{"spoken_text": "Reverse a linked list.", "code": "func reverse(head *Node) *Node {}", "solution": "full solution", "task_state": "task_presented"}`

func TestManager_TurnFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.chat.Enqueue(presentTaskReply)
	f.runTurn(t, "I mostly work with Go and Postgres")

	if got := f.chat.CallCount(); got != 1 {
		t.Errorf("chat calls = %d, want exactly 1 per turn", got)
	}
	if got := f.tts.Texts(); len(got) != 1 || got[0] != "Reverse a linked list." {
		t.Errorf("synthesized texts = %v", got)
	}

	clips := f.audio.spokenClips()
	if !clips[0].interruptible || clips[0].skipSpeechCheck {
		t.Errorf("reply clip flags = %+v, want interruptible and speech-checked", clips[0])
	}

	// UI ordering: the user's words appear before the assistant's reply.
	user := f.sink.ByKind(ui.KindUserMessage)
	assistant := f.sink.ByKind(ui.KindAssistantMessage)
	if len(user) != 1 || len(assistant) != 1 {
		t.Fatalf("user=%d assistant=%d notifications, want 1/1", len(user), len(assistant))
	}
	if user[0].Seq >= assistant[0].Seq {
		t.Errorf("user message seq %d not before assistant seq %d", user[0].Seq, assistant[0].Seq)
	}
}

// An utterance with no task on the table leads straight into presenting one.
func TestManager_FirstTurnPresentsTask(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.chat.Enqueue(presentTaskReply)
	f.runTurn(t, "I am ready to start")

	calls := f.chat.Calls()
	if !strings.Contains(calls[0].System, "present one new coding task") {
		t.Error("first call does not ask the model for a task")
	}
	if strings.Contains(calls[0].System, "task_state to no_task") {
		t.Error("first call steers the model away from presenting a task")
	}
	if got := f.mgr.Task(); got.Phase != conversation.TaskPresented {
		t.Errorf("task phase = %v, want TaskPresented", got.Phase)
	}
}

func TestManager_RejectsWeakSegment(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.mgr.HandleSegment(context.Background(), audio.Segment{Duration: 100 * time.Millisecond, RMS: 0.2})
	waitFor(t, func() bool { return f.audio.resumeCount() == 1 }, "short segment did not resume listening")

	f.mgr.HandleSegment(context.Background(), audio.Segment{Duration: 2 * time.Second, RMS: 0.01})
	waitFor(t, func() bool { return f.audio.resumeCount() == 2 }, "quiet segment did not resume listening")

	if f.asr.CallCount() != 0 {
		t.Errorf("rejected segments reached transcription %d times", f.asr.CallCount())
	}
	if len(f.sink.All()) != 0 {
		t.Errorf("rejected segments produced notifications: %v", f.sink.All())
	}
}

func TestManager_ValidationRetriesOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.chat.Enqueue(`{"spoken_text": "Here is a task without any code."}`)
	f.chat.Enqueue(presentTaskReply)

	f.runTurn(t, "hello")

	if got := f.chat.CallCount(); got != 2 {
		t.Fatalf("chat calls = %d, want 2 (original + one retry)", got)
	}
	calls := f.chat.Calls()
	if !strings.Contains(calls[1].System, "missing required fields") {
		t.Error("retry call does not carry the schema reminder")
	}
	if got := f.tts.Texts()[0]; got != "Reverse a linked list." {
		t.Errorf("spoke %q, want the retry's reply", got)
	}
}

func TestManager_FallbackAfterFailedRetry(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.chat.Enqueue(`{"spoken_text": "still no task payload"}`)
	f.chat.Enqueue(`not even json`)

	f.runTurn(t, "hello")

	if got := f.chat.CallCount(); got != 2 {
		t.Fatalf("chat calls = %d, want 2: no third attempt after the retry", got)
	}
	texts := f.tts.Texts()
	if len(texts) != 1 || texts[0] == "" {
		t.Fatalf("fallback was not spoken: %v", texts)
	}
}

func TestManager_TransportErrorNotifies(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.chat.EnqueueErr(llm.ErrServer)
	f.asr.Enqueue("hello")

	f.mgr.HandleSegment(context.Background(), validSegment())
	waitFor(t, func() bool { return len(f.sink.ByKind(ui.KindError)) == 1 }, "transport failure not surfaced")
	waitFor(t, func() bool { return f.audio.resumeCount() == 1 }, "failed turn did not resume listening")

	if clips := f.audio.spokenClips(); len(clips) != 0 {
		t.Errorf("failed turn produced playback: %v", clips)
	}
}

func TestManager_TranscriptionCancelledByNewSpeech(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.asr.Block = make(chan struct{})
	f.asr.Enqueue("never delivered")

	f.mgr.HandleSegment(context.Background(), validSegment())
	waitFor(t, func() bool { return f.asr.CallCount() == 1 }, "transcription never started")

	// New speech while the recognizer is busy: the stale turn dies silently.
	f.mgr.HandleSpeechStarted()
	time.Sleep(20 * time.Millisecond)

	if got := f.chat.CallCount(); got != 0 {
		t.Errorf("cancelled turn reached the model %d times", got)
	}
	if n := f.sink.All(); len(n) != 0 {
		t.Errorf("cancelled turn produced notifications: %v", n)
	}
	if got := f.audio.resumeCount(); got != 0 {
		t.Errorf("cancelled turn resumed listening %d times; the new utterance owns the state", got)
	}
}

func TestManager_TaskLifecycleWithPrefetch(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	// Turn 1: the model presents a task.
	f.chat.Enqueue(presentTaskReply)
	f.runTurn(t, "give me a task")
	if got := f.mgr.Task(); got.Phase != conversation.TaskPresented {
		t.Fatalf("task phase = %v, want TaskPresented", got.Phase)
	}
	if got := f.mgr.Task().ExpectedSolution; got != "full solution" {
		t.Errorf("expected solution not retained: %q", got)
	}

	// Turn 2: solution judged correct; a next-task prefetch fires.
	f.chat.Enqueue(`{"spoken_text": "Correct! Want the next one?", "is_correct": true, "task_state": "waiting_confirmation"}`)
	f.chat.Enqueue(`{"spoken_text": "Next: implement an LRU cache.", "code": "type LRU struct{}", "solution": "lru solution", "task_state": "task_presented"}`)
	f.runTurn(t, "I am done, check my solution")

	if got := f.mgr.Task(); got.Phase != conversation.TaskWaitingConfirmation {
		t.Fatalf("task phase = %v, want TaskWaitingConfirmation", got.Phase)
	}
	waitFor(t, func() bool { return f.chat.CallCount() == 3 }, "next-task prefetch never ran")
	// Let the prefetch goroutine store its result after the model call.
	time.Sleep(50 * time.Millisecond)

	// Turn 3: the confirmation is served from the prefetched slot — no
	// further model call.
	f.runTurn(t, "yes")
	if got := f.chat.CallCount(); got != 3 {
		t.Errorf("chat calls = %d, want 3: confirm turn must reuse the prefetched task", got)
	}
	if got := f.mgr.Task(); got.Phase != conversation.TaskPresented {
		t.Errorf("task phase = %v, want TaskPresented after confirmation", got.Phase)
	}
	texts := f.tts.Texts()
	if texts[len(texts)-1] != "Next: implement an LRU cache." {
		t.Errorf("confirm turn spoke %q, want the prefetched task", texts[len(texts)-1])
	}

	// The new task resets the assistance ladder and shows its code.
	if code := f.sink.ByKind(ui.KindCode); len(code) != 2 {
		t.Errorf("code notifications = %d, want one per presented task", len(code))
	}
}

// A free-form reply while a task is on the table is judged as an attempt.
func TestManager_FreeFormReplyJudgedAsSolution(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.chat.Enqueue(presentTaskReply)
	f.runTurn(t, "give me a task")

	f.chat.Enqueue(`{"spoken_text": "Not quite, think about the tail pointer.", "is_correct": false, "task_state": "checking_solution"}`)
	f.runTurn(t, "I would iterate with two pointers from both ends")

	calls := f.chat.Calls()
	if !strings.Contains(calls[1].System, "Judge it against the task") {
		t.Error("free-form reply was not judged as a solution attempt")
	}
	if got := f.mgr.Task(); got.Phase != conversation.TaskPresented {
		t.Errorf("task phase = %v, want TaskPresented after a wrong attempt", got.Phase)
	}
}

// While the next-task offer is pending, anything but a confirmation gets a
// canned re-prompt and the offer stays open for a later yes.
func TestManager_WaitingPhaseHoldsForConfirmation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.chat.Enqueue(presentTaskReply)
	f.runTurn(t, "give me a task")

	f.chat.Enqueue(`{"spoken_text": "Correct! Want the next one?", "is_correct": true, "task_state": "waiting_confirmation"}`)
	f.chat.Enqueue(`{"spoken_text": "Next: implement an LRU cache.", "code": "type LRU struct{}", "solution": "lru solution", "task_state": "task_presented"}`)
	f.runTurn(t, "I am done, check my solution")
	waitFor(t, func() bool { return f.chat.CallCount() == 3 }, "next-task prefetch never ran")
	time.Sleep(50 * time.Millisecond)

	f.runTurn(t, "could you explain the complexity again")
	if got := f.chat.CallCount(); got != 3 {
		t.Fatalf("chat calls = %d, want 3: a non-confirming reply must not reach the model", got)
	}
	if got := f.mgr.Task(); got.Phase != conversation.TaskWaitingConfirmation {
		t.Fatalf("task phase = %v, want TaskWaitingConfirmation to survive the detour", got.Phase)
	}
	texts := f.tts.Texts()
	if got := texts[len(texts)-1]; got != "No rush. Just tell me when you want the next task." {
		t.Errorf("hold reply = %q", got)
	}

	f.runTurn(t, "yes")
	if got := f.chat.CallCount(); got != 3 {
		t.Errorf("chat calls = %d, want 3: the prefetched task still serves the confirm", got)
	}
	if got := f.mgr.Task(); got.Phase != conversation.TaskPresented {
		t.Errorf("task phase = %v, want TaskPresented after the confirm", got.Phase)
	}
}

// Language-practice sessions run a coaching call before the main turn and
// fold its feedback into the interviewer's context, never into playback.
func TestManager_LanguagePracticeCoachingCall(t *testing.T) {
	t.Parallel()
	f := newFixtureWith(t, conversation.StaticSettings{
		Language:          "English",
		SessionLanguage:   "Russian",
		AllowInterruption: true,
	})
	f.chat.Enqueue(`{"spoken_text": "Say: I have worked with Go for two years.", "task_state": "no_task"}`)
	f.chat.Enqueue(presentTaskReply)

	f.runTurn(t, "I am working with Go since two years")

	calls := f.chat.Calls()
	if len(calls) != 2 {
		t.Fatalf("chat calls = %d, want a coaching call plus the main turn", len(calls))
	}
	if !strings.Contains(calls[0].System, "language coach") {
		t.Error("first call is not the coaching prompt")
	}
	if !strings.Contains(calls[1].System, "present one new coding task") {
		t.Error("second call is not the main turn")
	}
	if !strings.Contains(calls[1].System, "Say: I have worked with Go for two years.") {
		t.Error("coaching feedback not folded into the main prompt")
	}
	if got := f.tts.Texts(); len(got) != 1 || got[0] != "Reverse a linked list." {
		t.Errorf("spoken texts = %v, want only the main reply", got)
	}
}

// A turn that dies mid-transcription must not disarm the cancel hook of a
// turn that started after it.
func TestManager_StaleTurnKeepsNewTurnCancellable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.asr.Block = make(chan struct{})
	f.asr.Enqueue("never delivered")

	turn1, stopTurn1 := context.WithCancel(context.Background())
	defer stopTurn1()
	f.mgr.HandleSegment(turn1, validSegment())
	waitFor(t, func() bool { return f.asr.CallCount() == 1 }, "first transcription never started")

	f.mgr.HandleSegment(context.Background(), validSegment())
	waitFor(t, func() bool { return f.asr.CallCount() == 2 }, "second transcription never started")

	// The first turn dies while the second is mid-transcription; its cleanup
	// must leave the second turn's cancel hook in place.
	stopTurn1()
	time.Sleep(20 * time.Millisecond)

	f.mgr.HandleSpeechStarted()
	time.Sleep(20 * time.Millisecond)
	close(f.asr.Block)
	time.Sleep(20 * time.Millisecond)

	if got := f.chat.CallCount(); got != 0 {
		t.Errorf("superseded turns reached the model %d times", got)
	}
	if n := f.sink.All(); len(n) != 0 {
		t.Errorf("superseded turns produced notifications: %v", n)
	}
}

func TestManager_HelpEscalation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.chat.Enqueue(presentTaskReply)
	f.runTurn(t, "give me a task")

	f.chat.Enqueue(`{"spoken_text": "Think about what happens at the head.", "hint": "Think about the head.", "task_state": "providing_hint"}`)
	f.runTurn(t, "help me please")

	f.chat.Enqueue(`{"spoken_text": "Here is a fragment.", "code": "prev, cur := (*Node)(nil), head", "task_state": "providing_hint"}`)
	f.runTurn(t, "help me please")

	calls := f.chat.Calls()
	if !strings.Contains(calls[1].System, "conceptual hint") {
		t.Error("first help call should request a hint")
	}
	if !strings.Contains(calls[2].System, "code fragment") {
		t.Error("second help call should escalate to a code fragment")
	}
	if hints := f.sink.ByKind(ui.KindHint); len(hints) != 1 {
		t.Errorf("hint notifications = %d, want 1", len(hints))
	}
}

func TestManager_GreetingSkipsSpeechCheck(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.mgr.Greet(context.Background())

	clips := f.audio.spokenClips()
	if len(clips) != 1 {
		t.Fatalf("greeting clips = %d, want 1", len(clips))
	}
	if clips[0].interruptible || !clips[0].skipSpeechCheck {
		t.Errorf("greeting flags = %+v, want non-interruptible with speech check skipped", clips[0])
	}
	if msgs := f.sink.ByKind(ui.KindAssistantMessage); len(msgs) != 1 {
		t.Errorf("greeting notifications = %d, want 1", len(msgs))
	}
}
