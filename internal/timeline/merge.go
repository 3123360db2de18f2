// Package timeline rebases chunk-local utterances onto the source timeline and
// renders the resulting transcript.
package timeline

import (
	"strconv"
	"strings"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

// Mode selects how the base offset of each section is computed
type Mode int

const (
	// Continuous takes the base offset from the section window start.
	Continuous Mode = iota
	// Slides accumulates the measured duration of every prior section.
	Slides
)

func (m Mode) String() string {
	if m == Slides {
		return "slides"
	}
	return "continuous"
}

// Block is one labelled section of a transcript
type Block struct {
	Label string                 `json:"label"`
	Lines []types.TranscriptLine `json:"lines"`
}

// Transcript is the ordered output of a merge
type Transcript struct {
	Blocks []Block `json:"sections"`
}

// Merger folds sections into a transcript one at a time. Sections must be added
// in index order; the merger never reorders them.
type Merger struct {
	mode   Mode
	base   float64
	added  int
	blocks []Block
}

// NewMerger creates an empty merger with a zero base offset
func NewMerger(mode Mode) *Merger {
	return &Merger{mode: mode}
}

// Add appends one section. In continuous mode the base offset is the window
// start; in slide mode it is the running sum of prior section durations.
func (m *Merger) Add(s types.Section) {
	var label string
	base := m.base

	switch m.mode {
	case Slides:
		label = "SLIDE " + strconv.Itoa(m.added+1)
		m.base += s.Duration
	default:
		label = "PART " + strconv.Itoa(s.Window.Index)
		base = s.Window.Start
	}

	block := Block{Label: label, Lines: make([]types.TranscriptLine, 0, len(s.Utterances))}
	for _, u := range s.Utterances {
		text := CleanText(u.Text)
		if text == "" {
			continue
		}
		block.Lines = append(block.Lines, types.TranscriptLine{
			Timestamp: u.Start + base,
			Text:      text,
		})
	}

	m.blocks = append(m.blocks, block)
	m.added++
}

// Transcript returns a copy of everything merged so far
func (m *Merger) Transcript() Transcript {
	blocks := make([]Block, len(m.blocks))
	copy(blocks, m.blocks)
	return Transcript{Blocks: blocks}
}

// Len returns the number of sections added
func (m *Merger) Len() int {
	return m.added
}

// Merge folds sections in order. Merge(a, b, c) equals adding a, b and c to
// one Merger.
func Merge(mode Mode, sections []types.Section) Transcript {
	m := NewMerger(mode)
	for _, s := range sections {
		m.Add(s)
	}
	return m.Transcript()
}

// CleanText collapses whitespace runs, including newlines, to single spaces
// so that one utterance always renders as one line.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// WordCount returns the number of words across all lines
func (t Transcript) WordCount() int {
	n := 0
	for _, b := range t.Blocks {
		for _, l := range b.Lines {
			n += len(strings.Fields(l.Text))
		}
	}
	return n
}
