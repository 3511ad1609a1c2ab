package catalog

import (
	"errors"
	"strings"
	"testing"
)

func TestDefaultCatalogLoads(t *testing.T) {
	t.Parallel()

	c, err := Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}
	if len(c.Modules()) != 18 {
		t.Fatalf("expected 18 modules, got %d", len(c.Modules()))
	}

	m, err := c.Module("step-2-sorting")
	if err != nil {
		t.Fatalf("Module failed: %v", err)
	}
	if m.LevelCount() != 6 {
		t.Errorf("expected 6 levels, got %d", m.LevelCount())
	}
	if m.InitialLives != 5 {
		t.Errorf("expected 5 initial lives, got %d", m.InitialLives)
	}
	last, err := m.Level(6)
	if err != nil {
		t.Fatalf("Level failed: %v", err)
	}
	if !last.Surprise {
		t.Error("expected level 6 to be a surprise level")
	}
}

func TestModuleLookupErrors(t *testing.T) {
	t.Parallel()

	c, err := Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}
	if _, err := c.Module("nope"); !errors.Is(err, ErrModuleNotFound) {
		t.Fatalf("expected ErrModuleNotFound, got %v", err)
	}
	m, _ := c.Module("step-1-basics")
	if _, err := m.Level(99); !errors.Is(err, ErrLevelNotFound) {
		t.Fatalf("expected ErrLevelNotFound, got %v", err)
	}
}

func TestQuestionFor(t *testing.T) {
	t.Parallel()

	m := Module{
		ID: "m",
		Levels: []Level{
			{ID: 1, Question: "q1"},
			{ID: 2, Question: "q2"},
			{ID: 3, Question: "surprise", Surprise: true},
		},
	}

	if got := m.QuestionFor(m.Levels[0], nil); got != "q1" {
		t.Errorf("regular level: got %q", got)
	}

	var poolSize int
	got := m.QuestionFor(m.Levels[2], func(n int) int {
		poolSize = n
		return 1
	})
	if poolSize != 2 {
		t.Errorf("expected pool of 2 regular questions, got %d", poolSize)
	}
	if got != "q2" {
		t.Errorf("surprise level: got %q, want q2", got)
	}

	lonely := Module{ID: "x", Levels: []Level{{ID: 1, Question: "s", Surprise: true}}}
	if got := lonely.QuestionFor(lonely.Levels[0], nil); got != FallbackQuestion {
		t.Errorf("expected fallback question, got %q", got)
	}
}

func TestParseRejectsInvalidCatalog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"missing id", "[[module]]\ninitial_lives = 3\n[[module.level]]\nid = 1\n"},
		{"no lives", "[[module]]\nid = \"a\"\n[[module.level]]\nid = 1\n"},
		{"no levels", "[[module]]\nid = \"a\"\ninitial_lives = 2\n"},
		{"duplicate", "[[module]]\nid = \"a\"\ninitial_lives = 2\n[[module.level]]\nid = 1\n[[module]]\nid = \"a\"\ninitial_lives = 2\n[[module.level]]\nid = 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestStarterCode(t *testing.T) {
	t.Parallel()

	if (Level{}).StarterCode() != "" {
		t.Error("expected no starter code without a sample")
	}
	code := Level{SampleInput: "[1, 2]", SampleOutput: "2"}.StarterCode()
	if !strings.Contains(code, "// [1, 2]") || !strings.Contains(code, "// 2") {
		t.Errorf("starter code missing sample: %q", code)
	}
}
