package conversation

import (
	"strings"
	"sync"
)

// defaultContextCapacity bounds each tracked list in [Context].
const defaultContextCapacity = 5

// Context is a bounded rolling summary of the session: recent discussion
// topics and recently asked questions. It exists so that each turn's single
// model call can carry conversational continuity without replaying the full
// transcript — the prompt gets a compact summary string instead.
//
// All methods are safe for concurrent use.
type Context struct {
	mu        sync.Mutex
	capacity  int
	topics    []string
	questions []string
}

// NewContext returns a Context keeping at most capacity entries per list.
// capacity values below one fall back to the default of 5.
func NewContext(capacity int) *Context {
	if capacity < 1 {
		capacity = defaultContextCapacity
	}
	return &Context{capacity: capacity}
}

// AddTopic records a discussion topic, evicting the oldest entry when full.
// Blank and consecutive-duplicate topics are ignored.
func (c *Context) AddTopic(topic string) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = appendBounded(c.topics, topic, c.capacity)
}

// AddQuestion records a question asked by the interviewer.
func (c *Context) AddQuestion(question string) {
	question = strings.TrimSpace(question)
	if question == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.questions = appendBounded(c.questions, question, c.capacity)
}

// Topics returns a copy of the tracked topics, oldest first.
func (c *Context) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.topics))
	copy(out, c.topics)
	return out
}

// Questions returns a copy of the tracked questions, oldest first.
func (c *Context) Questions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.questions))
	copy(out, c.questions)
	return out
}

// Summary renders the context as a compact block for inclusion in a system
// prompt. An empty context yields an empty string.
func (c *Context) Summary() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.topics) == 0 && len(c.questions) == 0 {
		return ""
	}

	var b strings.Builder
	if len(c.topics) > 0 {
		b.WriteString("Recent topics: ")
		b.WriteString(strings.Join(c.topics, "; "))
	}
	if len(c.questions) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Recently asked: ")
		b.WriteString(strings.Join(c.questions, "; "))
	}
	return b.String()
}

// Reset clears all tracked context.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = nil
	c.questions = nil
}

// appendBounded appends v to list, dropping the oldest entry when list is at
// capacity and skipping consecutive duplicates.
func appendBounded(list []string, v string, capacity int) []string {
	if n := len(list); n > 0 && list[n-1] == v {
		return list
	}
	list = append(list, v)
	if len(list) > capacity {
		list = list[1:]
	}
	return list
}
