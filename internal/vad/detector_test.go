package vad_test

import (
	"context"
	"testing"
	"time"

	"github.com/XMaster-Denis/mock-tech-interview-ai/internal/vad"
	"github.com/XMaster-Denis/mock-tech-interview-ai/pkg/audio"
)

// feedLevels drives the detector with one sample per level.
func feedLevels(d *vad.Detector, levels ...float64) {
	for i, l := range levels {
		d.ProcessSample(audio.Sample{
			Level:     l,
			Frame:     []byte{byte(i)},
			Timestamp: time.Duration(i) * 50 * time.Millisecond,
		})
	}
}

// drainEvents collects everything currently buffered on the event channel.
func drainEvents(d *vad.Detector) []vad.Event {
	var evs []vad.Event
	for {
		select {
		case ev := <-d.Events():
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func TestDetector_SpeechCycle(t *testing.T) {
	t.Parallel()
	d := vad.New(vad.Config{
		TickInterval:   50 * time.Millisecond,
		Threshold:      0.15,
		SilenceTimeout: 100 * time.Millisecond,
		MinSpeechLevel: 0.04,
		PreRollTicks:   2,
	})

	feedLevels(d, 0.0, 0.2, 0.3, 0.05, 0.05, 0.05)

	evs := drainEvents(d)
	if len(evs) != 2 {
		t.Fatalf("got %d events (%v), want exactly SpeechStarted and SpeechEnded", len(evs), evs)
	}
	if evs[0].Type != vad.EventSpeechStarted {
		t.Errorf("first event = %v, want EventSpeechStarted", evs[0].Type)
	}
	if evs[1].Type != vad.EventSpeechEnded {
		t.Fatalf("second event = %v, want EventSpeechEnded", evs[1].Type)
	}

	seg := evs[1].Segment
	if seg == nil {
		t.Fatal("SpeechEnded carries no segment")
	}
	// Voice spanned ticks 1..2 at 50 ms each.
	if seg.Duration != 100*time.Millisecond {
		t.Errorf("segment duration = %v, want 100ms", seg.Duration)
	}
	// Pre-roll includes tick 0; trailing silence ticks are trimmed off.
	if want := []byte{0, 1, 2}; string(seg.PCM) != string(want) {
		t.Errorf("segment PCM = %v, want %v", seg.PCM, want)
	}
	if seg.Start != 0 {
		t.Errorf("segment start = %v, want 0", seg.Start)
	}
}

func TestDetector_ShortUtteranceRejected(t *testing.T) {
	t.Parallel()
	d := vad.New(vad.Config{
		TickInterval:      50 * time.Millisecond,
		Threshold:         0.15,
		SilenceTimeout:    100 * time.Millisecond,
		MinSpeechDuration: 200 * time.Millisecond,
		MinSpeechLevel:    0.04,
	})

	// One voiced tick = 50 ms of speech, far below the 200 ms minimum.
	feedLevels(d, 0.0, 0.3, 0.05, 0.05)

	evs := drainEvents(d)
	if len(evs) != 2 {
		t.Fatalf("got %d events (%v), want SpeechStarted then Silence", len(evs), evs)
	}
	if evs[1].Type != vad.EventSilence {
		t.Errorf("rejection event = %v, want EventSilence", evs[1].Type)
	}
}

func TestDetector_QuietUtteranceRejected(t *testing.T) {
	t.Parallel()
	d := vad.New(vad.Config{
		TickInterval:   50 * time.Millisecond,
		Threshold:      0.10,
		SilenceTimeout: 100 * time.Millisecond,
		MinSpeechLevel: 0.50,
	})

	feedLevels(d, 0.15, 0.15, 0.15, 0.05, 0.05)

	evs := drainEvents(d)
	if len(evs) == 0 || evs[len(evs)-1].Type != vad.EventSilence {
		t.Fatalf("events %v: want final EventSilence for a segment below the level gate", evs)
	}
	for _, ev := range evs {
		if ev.Type == vad.EventSpeechEnded {
			t.Error("quiet segment should not be confirmed as speech")
		}
	}
}

func TestDetector_PauseWithinSpeechKeepsSegment(t *testing.T) {
	t.Parallel()
	d := vad.New(vad.Config{
		TickInterval:   50 * time.Millisecond,
		Threshold:      0.15,
		SilenceTimeout: 150 * time.Millisecond, // 3 ticks
		MinSpeechLevel: 0.04,
	})

	// Two-tick dip, shorter than the timeout, then more voice.
	feedLevels(d, 0.3, 0.3, 0.05, 0.05, 0.3, 0.3, 0.05, 0.05, 0.05)

	evs := drainEvents(d)
	var started, ended int
	for _, ev := range evs {
		switch ev.Type {
		case vad.EventSpeechStarted:
			started++
		case vad.EventSpeechEnded:
			ended++
		}
	}
	if started != 1 || ended != 1 {
		t.Fatalf("started=%d ended=%d, want one continuous segment", started, ended)
	}

	// Voice spans ticks 0..5: six ticks of speech despite the dip.
	for _, ev := range evs {
		if ev.Type == vad.EventSpeechEnded && ev.Segment.Duration != 300*time.Millisecond {
			t.Errorf("segment duration = %v, want 300ms", ev.Segment.Duration)
		}
	}
}

func TestDetector_MaxRecordingForceEnds(t *testing.T) {
	t.Parallel()
	d := vad.New(vad.Config{
		TickInterval:   50 * time.Millisecond,
		Threshold:      0.15,
		SilenceTimeout: time.Hour,
		MaxRecording:   200 * time.Millisecond, // 4 ticks
		MinSpeechLevel: 0.04,
	})

	feedLevels(d, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3)

	evs := drainEvents(d)
	var ended bool
	for _, ev := range evs {
		if ev.Type == vad.EventSpeechEnded {
			ended = true
			if ev.Segment.Duration != 200*time.Millisecond {
				t.Errorf("forced segment duration = %v, want 200ms", ev.Segment.Duration)
			}
		}
	}
	if !ended {
		t.Fatal("continuous voice never force-ended at the recording cap")
	}
}

func TestDetector_PauseAndResume(t *testing.T) {
	t.Parallel()
	d := vad.New(vad.Config{
		TickInterval:   50 * time.Millisecond,
		Threshold:      0.15,
		SilenceTimeout: 100 * time.Millisecond,
		MinSpeechLevel: 0.04,
	})

	d.Pause()
	feedLevels(d, 0.3, 0.3, 0.3)
	if evs := drainEvents(d); len(evs) != 0 {
		t.Fatalf("paused detector emitted %v", evs)
	}

	d.Resume()
	feedLevels(d, 0.3, 0.3, 0.3, 0.05, 0.05)
	evs := drainEvents(d)
	if len(evs) != 2 || evs[1].Type != vad.EventSpeechEnded {
		t.Fatalf("after resume got %v, want SpeechStarted then SpeechEnded", evs)
	}
}

func TestDetector_SilenceProgressReported(t *testing.T) {
	t.Parallel()
	var progress []float64
	d := vad.New(vad.Config{
		TickInterval:   50 * time.Millisecond,
		Threshold:      0.15,
		SilenceTimeout: 100 * time.Millisecond,
		MinSpeechLevel: 0.04,
	}, vad.WithProgressFunc(func(p float64) {
		progress = append(progress, p)
	}))

	feedLevels(d, 0.3, 0.3, 0.05, 0.05)

	if len(progress) != 2 {
		t.Fatalf("got %d progress reports (%v), want 2", len(progress), progress)
	}
	if progress[0] != 0.5 || progress[1] != 1.0 {
		t.Errorf("progress = %v, want [0.5 1.0]", progress)
	}
}

func TestDetector_AdaptiveThresholdAfterCalibration(t *testing.T) {
	t.Parallel()
	ncfg := vad.DefaultNoiseConfig()
	ncfg.CalibrationSamples = 3
	analyzer := vad.NewNoiseAnalyzer(ncfg)
	analyzer.StartCalibration()

	d := vad.New(vad.Config{
		TickInterval:   50 * time.Millisecond,
		Threshold:      0.15,
		SilenceTimeout: 100 * time.Millisecond,
		MinSpeechLevel: 0.04,
	}, vad.WithAnalyzer(analyzer))

	// Loud levels during calibration must not trigger detection.
	feedLevels(d, 0.5, 0.04, 0.06)

	evs := drainEvents(d)
	if len(evs) != 1 || evs[0].Type != vad.EventCalibrated {
		t.Fatalf("during calibration got %v, want exactly EventCalibrated", evs)
	}
	if evs[0].Calibration == nil {
		t.Fatal("EventCalibrated carries no result")
	}

	// Once calibrated, the analyzer's threshold replaces the fixed one.
	if got, fixed := d.Threshold(), 0.15; got == fixed {
		t.Errorf("threshold still the fixed %v after calibration", fixed)
	}
}

func TestDetector_RunCaptureLostMidUtterance(t *testing.T) {
	t.Parallel()
	d := vad.New(vad.Config{
		TickInterval:   50 * time.Millisecond,
		Threshold:      0.15,
		SilenceTimeout: time.Hour,
		MinSpeechLevel: 0.04,
	})

	samples := make(chan audio.Sample, 4)
	samples <- audio.Sample{Level: 0.3}
	samples <- audio.Sample{Level: 0.3}
	close(samples)

	if err := d.Run(context.Background(), samples); err != nil {
		t.Fatalf("Run returned %v on channel close", err)
	}

	evs := drainEvents(d)
	var sawErr bool
	for _, ev := range evs {
		if ev.Type == vad.EventError {
			sawErr = true
			if ev.Err == nil {
				t.Error("EventError carries no error")
			}
		}
	}
	if !sawErr {
		t.Fatal("capture loss mid-utterance did not surface an EventError")
	}
}
