package pipeline

import (
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
)

// Class is the conversational-filler category assigned to a transcript, or
// ClassNone for texts that need the full retrieval and generation path.
type Class int

const (
	ClassNone Class = iota
	ClassGreeting
	ClassThanks
	ClassGoodbye
)

// String returns the class name as recorded in the turn log.
func (c Class) String() string {
	switch c {
	case ClassGreeting:
		return "greeting"
	case ClassThanks:
		return "thanks"
	case ClassGoodbye:
		return "goodbye"
	default:
		return ""
	}
}

// defaultFuzzyThreshold is the minimum Jaro-Winkler similarity between a
// transcript word and a keyword before the word counts as a noisy-STT
// variant of the keyword.
const defaultFuzzyThreshold = 0.88

// Default French keyword sets and canned responses.
var (
	defaultGreetingKeywords = []string{"bonjour", "salut", "hello", "hey", "coucou", "bonsoir"}
	defaultThanksKeywords   = []string{"merci", "merci beaucoup", "je te remercie", "thank you"}
	defaultGoodbyeKeywords  = []string{"au revoir", "bye", "à bientôt", "à plus", "ciao"}

	defaultGreetingResponses = []string{
		"Bonjour! Comment puis-je vous aider?",
		"Bonjour! Je suis l'assistant vocal. Que puis-je faire pour vous?",
	}
	defaultThanksResponses = []string{
		"Je vous en prie!",
		"Avec plaisir!",
		"De rien!",
	}
	defaultGoodbyeResponses = []string{
		"Au revoir! Bonne journée!",
		"À bientôt!",
		"Au revoir!",
	}
)

// ClassifierConfig holds the keyword sets and canned responses per class.
// Empty slices fall back to the French defaults.
type ClassifierConfig struct {
	GreetingKeywords []string
	ThanksKeywords   []string
	GoodbyeKeywords  []string

	GreetingResponses []string
	ThanksResponses   []string
	GoodbyeResponses  []string

	// FuzzyThreshold is the minimum Jaro-Winkler similarity for a word to
	// count as a keyword variant. Zero selects the package default.
	FuzzyThreshold float64
}

// Classifier assigns conversational fillers to fast-path classes so they
// never touch retrieval or generation, and hands out canned responses in
// rotation. Safe for concurrent use.
type Classifier struct {
	keywords  map[Class][]string
	responses map[Class][]string
	threshold float64

	mu   sync.Mutex
	next map[Class]int
}

// NewClassifier creates a Classifier from cfg, filling empty fields with the
// French defaults.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	pick := func(v, def []string) []string {
		if len(v) > 0 {
			return v
		}
		return def
	}
	threshold := cfg.FuzzyThreshold
	if threshold == 0 {
		threshold = defaultFuzzyThreshold
	}
	return &Classifier{
		keywords: map[Class][]string{
			ClassGreeting: pick(cfg.GreetingKeywords, defaultGreetingKeywords),
			ClassThanks:   pick(cfg.ThanksKeywords, defaultThanksKeywords),
			ClassGoodbye:  pick(cfg.GoodbyeKeywords, defaultGoodbyeKeywords),
		},
		responses: map[Class][]string{
			ClassGreeting: pick(cfg.GreetingResponses, defaultGreetingResponses),
			ClassThanks:   pick(cfg.ThanksResponses, defaultThanksResponses),
			ClassGoodbye:  pick(cfg.GoodbyeResponses, defaultGoodbyeResponses),
		},
		threshold: threshold,
		next:      make(map[Class]int),
	}
}

// Classify matches text against the keyword sets, in greeting, thanks,
// goodbye order. Matching is case-insensitive: multi-word keywords match as
// substrings, single words match exactly or by Jaro-Winkler similarity to
// absorb transcription noise ("mercie" still counts as "merci").
func (c *Classifier) Classify(text string) Class {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return ClassNone
	}
	words := strings.Fields(lower)

	for _, class := range []Class{ClassGreeting, ClassThanks, ClassGoodbye} {
		for _, kw := range c.keywords[class] {
			if strings.Contains(kw, " ") {
				if strings.Contains(lower, kw) {
					return class
				}
				continue
			}
			for _, w := range words {
				if w == kw || matchr.JaroWinkler(w, kw, false) >= c.threshold {
					return class
				}
			}
		}
	}
	return ClassNone
}

// Respond returns the next canned response for class, rotating through the
// configured list so repeated fillers do not sound scripted. Returns "" for
// ClassNone.
func (c *Classifier) Respond(class Class) string {
	responses := c.responses[class]
	if len(responses) == 0 {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.next[class]
	c.next[class] = (i + 1) % len(responses)
	return responses[i]
}
