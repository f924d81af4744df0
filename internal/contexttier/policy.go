// Package contexttier sizes the video and script context attached to a query.
//
// Three ordered tiers (S < M < L) map to progressively wider windows around
// the playback position. A Policy holds only its window table and is safe for
// concurrent use.
package contexttier

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/satriahrh/studylive/domain/entities"
)

// Window is the reach of one tier on either side of the position
type Window struct {
	Seconds float64 `yaml:"seconds"`
	Lines   int     `yaml:"lines"`
}

// Config maps each tier to its window
type Config struct {
	Tiers map[entities.Tier]Window `yaml:"tiers"`
}

// DefaultConfig returns ±5s/1 line, ±10s/2 lines and ±20s/3 lines
func DefaultConfig() Config {
	return Config{Tiers: map[entities.Tier]Window{
		entities.TierS: {Seconds: 5, Lines: 1},
		entities.TierM: {Seconds: 10, Lines: 2},
		entities.TierL: {Seconds: 20, Lines: 3},
	}}
}

// LoadConfig reads a tier table from a YAML file. Tiers missing from the
// file keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read tier config file: %w", err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("failed to parse tier config YAML: %w", err)
	}

	config := DefaultConfig()
	for tier, window := range file.Tiers {
		parsed, err := ParseTier(string(tier))
		if err != nil {
			return Config{}, err
		}
		config.Tiers[parsed] = window
	}
	return config, ValidateConfig(config)
}

// ValidateConfig checks that every tier is present and windows never shrink
// from S to L.
func ValidateConfig(config Config) error {
	var prev Window
	for _, tier := range order {
		window, ok := config.Tiers[tier]
		if !ok {
			return fmt.Errorf("tier %s is not configured", tier)
		}
		if window.Seconds < 0 || window.Lines < 0 {
			return fmt.Errorf("tier %s has a negative window", tier)
		}
		if window.Seconds < prev.Seconds || window.Lines < prev.Lines {
			return fmt.Errorf("tier %s window is smaller than the tier below it", tier)
		}
		prev = window
	}
	return nil
}

var order = []entities.Tier{entities.TierS, entities.TierM, entities.TierL}

func rank(tier entities.Tier) int {
	for i, t := range order {
		if t == tier {
			return i
		}
	}
	return -1
}

// ParseTier accepts s, m, l in any case
func ParseTier(s string) (entities.Tier, error) {
	tier := entities.Tier(strings.ToUpper(strings.TrimSpace(s)))
	if rank(tier) < 0 {
		return "", fmt.Errorf("unknown context tier %q", s)
	}
	return tier, nil
}

// Escalate returns the next larger tier, or L if already at L
func Escalate(tier entities.Tier) entities.Tier {
	r := rank(tier)
	if r < 0 {
		return entities.TierS
	}
	if r+1 >= len(order) {
		return order[len(order)-1]
	}
	return order[r+1]
}

// Next returns the tier a follow-up query should use. When the answer asks
// for more context it is the larger of the escalated tier and the tier the
// model suggested; otherwise the current tier.
func Next(card entities.AnswerCard, current entities.Tier) entities.Tier {
	if rank(current) < 0 {
		current = entities.TierS
	}
	if !card.NeedsMoreContext {
		return current
	}

	next := Escalate(current)
	if rank(card.SuggestedContextTier) > rank(next) {
		return card.SuggestedContextTier
	}
	return next
}

// Policy assembles contextual bundles from a tier table
type Policy struct {
	windows map[entities.Tier]Window
}

// NewPolicy creates a policy from a validated config
func NewPolicy(config Config) (*Policy, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid tier config: %w", err)
	}

	windows := make(map[entities.Tier]Window, len(config.Tiers))
	for tier, window := range config.Tiers {
		windows[tier] = window
	}
	return &Policy{windows: windows}, nil
}

// Window returns the configured window of tier
func (p *Policy) Window(tier entities.Tier) Window {
	return p.windows[tier]
}

// Assemble builds the bundle for a query at position. Unknown tiers are
// treated as S. The time window is clamped at zero and the script window is
// centered on the last line starting at or before position.
func (p *Policy) Assemble(tier entities.Tier, position time.Duration, script []entities.ScriptLine, image []byte) entities.ContextualBundle {
	if rank(tier) < 0 {
		tier = entities.TierS
	}
	if position < 0 {
		position = 0
	}
	window := p.windows[tier]
	reach := time.Duration(window.Seconds * float64(time.Second))

	start := position - reach
	if start < 0 {
		start = 0
	}

	return entities.ContextualBundle{
		Tier:        tier,
		Position:    position,
		Window:      entities.TimeWindow{Start: start, End: position + reach},
		ScriptLines: scriptWindow(script, position, window.Lines),
		Image:       image,
	}
}

func scriptWindow(script []entities.ScriptLine, position time.Duration, lines int) []entities.ScriptLine {
	if len(script) == 0 {
		return nil
	}

	if !sort.SliceIsSorted(script, func(i, j int) bool { return script[i].Start < script[j].Start }) {
		sorted := make([]entities.ScriptLine, len(script))
		copy(sorted, script)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
		script = sorted
	}

	// First line starting after position, minus one.
	anchor := sort.Search(len(script), func(i int) bool { return script[i].Start > position }) - 1
	if anchor < 0 {
		anchor = 0
	}

	from := max(0, anchor-lines)
	to := min(len(script), anchor+lines+1)

	out := make([]entities.ScriptLine, to-from)
	copy(out, script[from:to])
	return out
}

// Render formats a bundle as prompt text for the ask path
func Render(bundle entities.ContextualBundle) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Context tier: %s\n", bundle.Tier)
	fmt.Fprintf(&b, "Playback position: %s\n", timestamp(bundle.Position))
	fmt.Fprintf(&b, "Time window: %s - %s\n", timestamp(bundle.Window.Start), timestamp(bundle.Window.End))

	if len(bundle.ScriptLines) == 0 {
		b.WriteString("Script: (none)\n")
	} else {
		b.WriteString("Script:\n")
		for _, line := range bundle.ScriptLines {
			fmt.Fprintf(&b, "[%s] %s\n", timestamp(line.Start), line.Text)
		}
	}

	if len(bundle.Image) > 0 {
		b.WriteString("A frame captured at the playback position is attached.\n")
	}
	return b.String()
}

func timestamp(d time.Duration) string {
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
