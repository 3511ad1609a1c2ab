// Package catalog provides the immutable module/level question catalog.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/BurntSushi/toml"
)

//go:embed modules.toml
var defaultCatalog []byte

// FallbackQuestion is asked on surprise levels when the module has no other questions.
const FallbackQuestion = "Tell me about yourself and your experience with data structures."

var (
	// ErrModuleNotFound is returned when a module id is not in the catalog.
	ErrModuleNotFound = errors.New("module not found")
	// ErrLevelNotFound is returned when a level id is not in the module.
	ErrLevelNotFound = errors.New("level not found")
)

// Level is one interview question within a module.
type Level struct {
	ID           int    `toml:"id" json:"id"`
	Name         string `toml:"name" json:"name"`
	Question     string `toml:"question" json:"question"`
	Surprise     bool   `toml:"surprise" json:"isSurprise,omitempty"`
	SampleInput  string `toml:"sample_input" json:"sampleInput,omitempty"`
	SampleOutput string `toml:"sample_output" json:"sampleOutput,omitempty"`
}

// StarterCode returns the editor template for levels that carry a sample.
func (l Level) StarterCode() string {
	if l.SampleInput == "" {
		return ""
	}
	return fmt.Sprintf("function solve() {\n  // Sample Input:\n  // %s\n  //\n  // Your code here\n  //\n  // Expected Output:\n  // %s\n}\n", l.SampleInput, l.SampleOutput)
}

// Module is a group of levels sharing a life pool and a badge.
type Module struct {
	ID           string  `toml:"id" json:"id"`
	Name         string  `toml:"name" json:"name"`
	Description  string  `toml:"description" json:"description"`
	InitialLives int     `toml:"initial_lives" json:"initialLives"`
	Levels       []Level `toml:"level" json:"levels"`
}

// LevelCount returns the total number of levels, surprise levels included.
func (m Module) LevelCount() int {
	return len(m.Levels)
}

// Level looks up a level by id.
func (m Module) Level(id int) (Level, error) {
	for _, l := range m.Levels {
		if l.ID == id {
			return l, nil
		}
	}
	return Level{}, fmt.Errorf("%w: %s/%d", ErrLevelNotFound, m.ID, id)
}

// QuestionFor selects the question to ask for a level. Regular levels ask their own
// question; surprise levels ask a random question from the module's other regular levels.
// pick receives n > 0 and must return an index in [0, n); nil uses math/rand.
func (m Module) QuestionFor(level Level, pick func(n int) int) string {
	if !level.Surprise {
		return level.Question
	}
	var pool []string
	for _, l := range m.Levels {
		if l.Surprise || l.ID == level.ID || l.Question == "" {
			continue
		}
		pool = append(pool, l.Question)
	}
	if len(pool) == 0 {
		return FallbackQuestion
	}
	if pick == nil {
		pick = rand.IntN
	}
	return pool[pick(len(pool))]
}

// Catalog is the ordered, read-only set of modules.
type Catalog struct {
	modules []Module
	byID    map[string]int
}

type catalogFile struct {
	Modules []Module `toml:"module"`
}

// Parse decodes a TOML catalog and validates it.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if _, err := toml.Decode(string(data), &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{modules: file.Modules, byID: make(map[string]int, len(file.Modules))}
	for i, m := range file.Modules {
		if m.ID == "" {
			return nil, fmt.Errorf("module %d has no id", i)
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate module id %q", m.ID)
		}
		if m.InitialLives <= 0 {
			return nil, fmt.Errorf("module %q: initial_lives must be > 0", m.ID)
		}
		if len(m.Levels) == 0 {
			return nil, fmt.Errorf("module %q has no levels", m.ID)
		}
		c.byID[m.ID] = i
	}
	return c, nil
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Modules returns the modules in learning-path order.
func (c *Catalog) Modules() []Module {
	return c.modules
}

// Module looks up a module by id.
func (c *Catalog) Module(id string) (Module, error) {
	i, ok := c.byID[id]
	if !ok {
		return Module{}, fmt.Errorf("%w: %s", ErrModuleNotFound, id)
	}
	return c.modules[i], nil
}

// Names maps module ids to display names, preserving the given order.
func (c *Catalog) Names(ids []string) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if m, err := c.Module(id); err == nil {
			names = append(names, m.Name)
		}
	}
	return names
}
