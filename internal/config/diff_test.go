package config_test

import (
	"testing"

	"github.com/MrWong99/parley/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	new := &config.Config{}
	d := config.Diff(old, new)
	if d.HasChanges() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	old.Server.LogLevel = config.LogInfo
	new := &config.Config{}
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("LogLevelChanged should be true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want %q", d.NewLogLevel, config.LogDebug)
	}
}

func TestDiff_Conversation(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	old.Conversation.SystemPrompt = "Tu es un assistant."
	new := &config.Config{}
	new.Conversation.SystemPrompt = "Tu es un assistant vocal."

	d := config.Diff(old, new)
	if !d.ConversationChanged {
		t.Error("ConversationChanged should be true")
	}
	if d.LogLevelChanged || d.KeywordsChanged || d.RetrievalChanged {
		t.Errorf("unexpected extra changes: %+v", d)
	}
}

func TestDiff_Keywords(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	old.Keywords.Greetings = []string{"bonjour"}
	new := &config.Config{}
	new.Keywords.Greetings = []string{"bonjour", "salut"}

	d := config.Diff(old, new)
	if !d.KeywordsChanged {
		t.Error("KeywordsChanged should be true")
	}
}

func TestDiff_KeywordsEqualListsAreNotAChange(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	old.Keywords.Thanks = []string{"merci"}
	new := &config.Config{}
	new.Keywords.Thanks = []string{"merci"}

	d := config.Diff(old, new)
	if d.KeywordsChanged {
		t.Error("identical keyword lists should not register as a change")
	}
}

func TestDiff_Retrieval(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	old.Retrieval.TopK = 3
	new := &config.Config{}
	new.Retrieval.TopK = 5

	d := config.Diff(old, new)
	if !d.RetrievalChanged {
		t.Error("RetrievalChanged should be true")
	}
}

func TestDiff_IgnoresProviderChanges(t *testing.T) {
	t.Parallel()
	// Provider swaps require a restart, so they never show up in the diff.
	old := &config.Config{}
	old.Providers.LLM.Name = "groq"
	new := &config.Config{}
	new.Providers.LLM.Name = "ollama"

	d := config.Diff(old, new)
	if d.HasChanges() {
		t.Errorf("provider change should not be hot-reloadable, got %+v", d)
	}
}
