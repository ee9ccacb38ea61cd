// Package model defines the data structures shared across the bar: block
// configuration, scheduling intervals, block lifecycle states and the pipe
// descriptors exchanged with the scheduler.
package model

import "fmt"

type Config struct {
	Defaults Defaults    `yaml:"defaults"`
	Blocks   []BlockSpec `yaml:"blocks"`
}

// Defaults carries settings applied to every block that does not override
// them itself.
type Defaults struct {
	Interval   Interval `yaml:"interval"`
	Format     Format   `yaml:"format"`
	Properties `yaml:",inline"`
}

// BlockSpec is one block as declared in the configuration file. A spec
// without a command is a static block: it renders its configured properties
// and never spawns anything.
type BlockSpec struct {
	Name     string   `yaml:"name"`
	Instance string   `yaml:"instance"`
	Command  string   `yaml:"command"`
	Interval Interval `yaml:"interval"`
	Signal   int      `yaml:"signal"`
	Format   Format   `yaml:"format"`
	Label    string   `yaml:"label"`

	Properties `yaml:",inline"`
}

// Properties are the display fields forwarded to the bar verbatim. They
// mirror the i3bar block object; unset fields stay off the wire.
type Properties struct {
	FullText            string `yaml:"full_text"`
	ShortText           string `yaml:"short_text"`
	Color               string `yaml:"color"`
	Background          string `yaml:"background"`
	Border              string `yaml:"border"`
	MinWidth            any    `yaml:"min_width"`
	Align               string `yaml:"align"`
	Urgent              bool   `yaml:"urgent"`
	Separator           *bool  `yaml:"separator"`
	SeparatorBlockWidth int    `yaml:"separator_block_width"`
	Markup              string `yaml:"markup"`
}

type Format string

const (
	FormatPlain Format = "plain"
	FormatJSON  Format = "json"
)

// MaxSignalOffset is the number of real-time signals available for block
// addressing. glibc reserves the first two kernel real-time slots, which
// leaves SIGRTMAX-SIGRTMIN = 30 usable offsets on Linux.
const MaxSignalOffset = 30

// MergeDefaults fills unset display fields from the global defaults and
// returns the result. Block-level values always win.
func (p Properties) MergeDefaults(def Properties) Properties {
	if p.FullText == "" {
		p.FullText = def.FullText
	}
	if p.ShortText == "" {
		p.ShortText = def.ShortText
	}
	if p.Color == "" {
		p.Color = def.Color
	}
	if p.Background == "" {
		p.Background = def.Background
	}
	if p.Border == "" {
		p.Border = def.Border
	}
	if p.MinWidth == nil {
		p.MinWidth = def.MinWidth
	}
	if p.Align == "" {
		p.Align = def.Align
	}
	if !p.Urgent {
		p.Urgent = def.Urgent
	}
	if p.Separator == nil {
		p.Separator = def.Separator
	}
	if p.SeparatorBlockWidth == 0 {
		p.SeparatorBlockWidth = def.SeparatorBlockWidth
	}
	if p.Markup == "" {
		p.Markup = def.Markup
	}
	return p
}

func (c *Config) Validate() error {
	for i := range c.Blocks {
		b := &c.Blocks[i]
		if b.Signal < 0 || b.Signal > MaxSignalOffset {
			return fmt.Errorf("block %s: signal %d out of range 1..%d", blockLabel(b, i), b.Signal, MaxSignalOffset)
		}
		switch b.Format {
		case "", FormatPlain, FormatJSON:
		default:
			return fmt.Errorf("block %s: unknown format %q", blockLabel(b, i), b.Format)
		}
		if b.Interval == IntervalPersist && b.Command == "" {
			return fmt.Errorf("block %s: persist interval requires a command", blockLabel(b, i))
		}
	}
	return nil
}

func blockLabel(b *BlockSpec, i int) string {
	if b.Name == "" {
		return fmt.Sprintf("#%d", i)
	}
	if b.Instance == "" {
		return b.Name
	}
	return b.Name + "/" + b.Instance
}
