package conversation

import (
	"fmt"
	"strings"
	"testing"
)

func TestContext_BoundedGrowth(t *testing.T) {
	t.Parallel()
	c := NewContext(5)
	for i := 0; i < 20; i++ {
		c.AddTopic(fmt.Sprintf("topic %d", i))
		c.AddQuestion(fmt.Sprintf("question %d", i))
	}

	topics := c.Topics()
	if len(topics) != 5 {
		t.Fatalf("topics = %d, want capped at 5", len(topics))
	}
	// Oldest entries are evicted first.
	if topics[0] != "topic 15" || topics[4] != "topic 19" {
		t.Errorf("topics = %v, want the 5 most recent", topics)
	}
	if questions := c.Questions(); len(questions) != 5 {
		t.Errorf("questions = %d, want capped at 5", len(questions))
	}
}

func TestContext_SkipsBlanksAndDuplicates(t *testing.T) {
	t.Parallel()
	c := NewContext(5)
	c.AddTopic("")
	c.AddTopic("   ")
	c.AddTopic("goroutines")
	c.AddTopic("goroutines")
	c.AddTopic("channels")

	if got := c.Topics(); len(got) != 2 {
		t.Errorf("topics = %v, want [goroutines channels]", got)
	}
}

func TestContext_Summary(t *testing.T) {
	t.Parallel()
	c := NewContext(5)
	if c.Summary() != "" {
		t.Error("empty context should render an empty summary")
	}

	c.AddTopic("binary trees")
	c.AddQuestion("What is the complexity of lookup?")

	s := c.Summary()
	if !strings.Contains(s, "binary trees") {
		t.Errorf("summary %q missing topic", s)
	}
	if !strings.Contains(s, "What is the complexity of lookup?") {
		t.Errorf("summary %q missing question", s)
	}
}

func TestContext_Reset(t *testing.T) {
	t.Parallel()
	c := NewContext(5)
	c.AddTopic("maps")
	c.AddQuestion("why?")
	c.Reset()

	if len(c.Topics()) != 0 || len(c.Questions()) != 0 || c.Summary() != "" {
		t.Error("Reset should clear all tracked context")
	}
}

func TestNewContext_DefaultCapacity(t *testing.T) {
	t.Parallel()
	c := NewContext(0)
	for i := 0; i < 10; i++ {
		c.AddTopic(fmt.Sprintf("t%d", i))
	}
	if got := len(c.Topics()); got != 5 {
		t.Errorf("zero capacity should fall back to 5, got %d entries", got)
	}
}
