package conversation

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Intent is the classified purpose of a user utterance, interpreted relative
// to the current task phase.
type Intent int

const (
	// IntentNone means the utterance is ordinary conversation.
	IntentNone Intent = iota

	// IntentSolutionReady means the user announced their solution is done
	// and wants it checked.
	IntentSolutionReady

	// IntentHelpRequest means the user asked for assistance with the task.
	IntentHelpRequest

	// IntentConfirmYes means the user agreed to move to the next task.
	IntentConfirmYes

	// IntentConfirmNo means the user declined to move on.
	IntentConfirmNo
)

// String returns the intent name.
func (i Intent) String() string {
	switch i {
	case IntentNone:
		return "none"
	case IntentSolutionReady:
		return "solution_ready"
	case IntentHelpRequest:
		return "help_request"
	case IntentConfirmYes:
		return "confirm_yes"
	case IntentConfirmNo:
		return "confirm_no"
	default:
		return "unknown"
	}
}

// Trigger phrase sets. Matching is substring-based first, then phonetic:
// speech recognition frequently mangles short command phrases ("I'm done"
// comes back as "I am dawn"), so a phrase also matches when every one of
// its tokens is covered by an utterance token via Double Metaphone overlap
// ranked by Jaro-Winkler.
var (
	solutionReadyPhrases = []string{
		"i'm done", "i am done", "done with", "finished", "i have finished",
		"check my solution", "check the solution", "ready to check",
		"that's my answer", "solution is ready",
		"готово", "я закончил", "я закончила", "проверь решение",
		"проверь мое решение", "решение готово",
	}

	helpRequestPhrases = []string{
		"help", "help me", "i need help", "hint", "give me a hint",
		"i'm stuck", "i am stuck", "stuck", "don't know how", "show me how",
		"помоги", "помощь", "подскажи", "подсказка", "я застрял",
		"не знаю как", "покажи как",
	}

	confirmYesPhrases = []string{
		"yes", "yeah", "yep", "sure", "of course", "next task", "let's go",
		"go ahead", "continue", "да", "давай", "конечно", "следующая задача",
		"продолжаем", "поехали",
	}

	confirmNoPhrases = []string{
		"no", "nope", "not yet", "wait", "hold on", "one moment",
		"нет", "не надо", "подожди", "еще нет", "минуту",
	}
)

const (
	intentPhoneticThreshold = 0.65
	intentFuzzyThreshold    = 0.88

	// Utterances longer than this are never treated as bare confirmations;
	// short command phrases drown in long sentences.
	maxConfirmTokens = 4
)

// Classifier maps utterances to intents using the trigger phrase sets.
// It is read-only after construction and safe for concurrent use.
type Classifier struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// ClassifierOption configures a [Classifier].
type ClassifierOption func(*Classifier)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a token
// pair that already shares a Double Metaphone code. Default: 0.65.
func WithPhoneticThreshold(t float64) ClassifierOption {
	return func(c *Classifier) { c.phoneticThreshold = t }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score without phonetic
// agreement. Default: 0.88.
func WithFuzzyThreshold(t float64) ClassifierOption {
	return func(c *Classifier) { c.fuzzyThreshold = t }
}

// NewClassifier returns a Classifier with default thresholds.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		phoneticThreshold: intentPhoneticThreshold,
		fuzzyThreshold:    intentFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify determines the intent of text given the current task phase.
// Phase gates which intents are reachable: confirmations only apply while
// waiting for one, solution and help intents only while a task is active.
func (c *Classifier) Classify(text string, phase TaskPhase) Intent {
	t := normalize(text)
	if t == "" {
		return IntentNone
	}

	switch phase {
	case TaskWaitingConfirmation:
		// Negative phrases first: "not yet" contains tokens that fuzzily
		// resemble "yes" in some recognizers.
		if c.matchesAny(t, confirmNoPhrases) {
			return IntentConfirmNo
		}
		if len(strings.Fields(t)) <= maxConfirmTokens && c.matchesAny(t, confirmYesPhrases) {
			return IntentConfirmYes
		}
		return IntentNone

	case TaskPresented:
		if c.matchesAny(t, solutionReadyPhrases) {
			return IntentSolutionReady
		}
		if c.matchesAny(t, helpRequestPhrases) {
			return IntentHelpRequest
		}
		return IntentNone

	default:
		return IntentNone
	}
}

// matchesAny reports whether the utterance matches any phrase: by substring
// containment, by whole-utterance similarity, or by phonetic coverage of
// every phrase token.
func (c *Classifier) matchesAny(utterance string, phrases []string) bool {
	tokens := strings.Fields(utterance)

	for _, phrase := range phrases {
		if strings.Contains(utterance, phrase) {
			return true
		}
		if c.phraseMatches(tokens, utterance, phrase) {
			return true
		}
	}
	return false
}

// phraseMatches reports whether the utterance is plausibly a mangled
// recognition of phrase. Either the whole utterance resembles the whole
// phrase, or every phrase token is covered by some utterance token. One
// resembling token pair alone is never enough: stopwords like "a" score
// 0.85 against "am" and would otherwise claim a multi-word phrase for
// arbitrary sentences.
func (c *Classifier) phraseMatches(tokens []string, utterance, phrase string) bool {
	if matchr.JaroWinkler(utterance, phrase, false) >= c.fuzzyThreshold {
		return true
	}
	phraseTokens := strings.Fields(phrase)
	if len(tokens) > 1 || len(phraseTokens) > 1 {
		collapsed := strings.Join(tokens, "")
		if matchr.JaroWinkler(collapsed, strings.Join(phraseTokens, ""), false) >= c.fuzzyThreshold {
			return true
		}
	}

	for _, pt := range phraseTokens {
		if !c.tokenCovered(tokens, pt) {
			return false
		}
	}
	return true
}

// tokenCovered reports whether some utterance token sounds like the phrase
// token: near-identical spelling, or a shared Double Metaphone code with
// moderate string similarity.
func (c *Classifier) tokenCovered(tokens []string, phraseToken string) bool {
	phraseCodes := codesFor(phraseToken)
	for _, ut := range tokens {
		score := matchr.JaroWinkler(ut, phraseToken, false)
		if score >= c.fuzzyThreshold {
			return true
		}
		if score >= c.phoneticThreshold && codesOverlap(codesFor(ut), phraseCodes) {
			return true
		}
	}
	return false
}

// normalize lowercases and strips punctuation that recognizers attach to
// command phrases.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '!', '?', ';', ':':
			return -1
		}
		return r
	}, s)
}

// codesFor returns the Double Metaphone codes of one token.
func codesFor(token string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(token)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

// codesOverlap reports whether the two code sets share a code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
