package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ConversationChanged is true when the system prompt, greeting,
	// temperature, or max tokens changed.
	ConversationChanged bool

	// KeywordsChanged is true when any keyword list or canned response
	// list changed.
	KeywordsChanged bool

	// RetrievalChanged is true when top_k or score_threshold changed.
	RetrievalChanged bool
}

// HasChanges reports whether any hot-reloadable field changed.
func (d ConfigDiff) HasChanges() bool {
	return d.LogLevelChanged || d.ConversationChanged || d.KeywordsChanged || d.RetrievalChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart; provider and
// server settings require a restart and are ignored here.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Conversation != new.Conversation {
		d.ConversationChanged = true
	}

	if !keywordsEqual(old.Keywords, new.Keywords) {
		d.KeywordsChanged = true
	}

	if old.Retrieval != new.Retrieval {
		d.RetrievalChanged = true
	}

	return d
}

func keywordsEqual(a, b KeywordsConfig) bool {
	return slices.Equal(a.Greetings, b.Greetings) &&
		slices.Equal(a.Thanks, b.Thanks) &&
		slices.Equal(a.Goodbyes, b.Goodbyes) &&
		slices.Equal(a.GreetingResponses, b.GreetingResponses) &&
		slices.Equal(a.ThanksResponses, b.ThanksResponses) &&
		slices.Equal(a.GoodbyeResponses, b.GoodbyeResponses) &&
		a.FuzzyThreshold == b.FuzzyThreshold
}
