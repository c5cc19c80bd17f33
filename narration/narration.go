// Package narration turns ordered, transcribed panels into a narration script.
package narration

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/wudi/mangarecap/panel"
)

const (
	DefaultPlaceholder    = "[scene]"
	DefaultSeparator      = " ... "
	DefaultWordsPerSecond = 2.5
	DefaultPageTransition = "Moving on to the next page..."
)

// Kind distinguishes panel narration from the bookend units.
type Kind int

const (
	KindPanel Kind = iota
	KindIntro
	KindOutro
)

func (k Kind) String() string {
	switch k {
	case KindIntro:
		return "intro"
	case KindOutro:
		return "outro"
	default:
		return "panel"
	}
}

// Unit is one narrated beat. Panel units map one-to-one onto the panels given
// to Compose.
type Unit struct {
	Index int
	Kind  Kind
	Text  string
	// Placeholder is set when the panel had no usable text and Text carries the
	// scene marker instead.
	Placeholder bool
	Page        int
	Rank        int
	// Weight estimates the spoken length in seconds.
	Weight float64
}

// Script is the composed narration.
type Script struct {
	Units []Unit
	// Text is the units joined by the pause separator, ready for TTS.
	Text string
}

// TextFilter post-processes cleaned panel text. Returning an empty string turns
// the unit into a placeholder.
type TextFilter func(text string, page, rank int) (string, error)

// Options controls composition. The zero value composes plain panel units with
// the default marker and separator.
type Options struct {
	Placeholder    string
	Separator      string
	WordsPerSecond float64
	// Title enables the intro and outro units when non-empty.
	Title string
	// PageTransitions prefixes the first unit of every page after the first.
	PageTransitions bool
	Filter          TextFilter
}

// Compose builds the script. Every panel yields exactly one unit, so the
// result is never empty for a non-empty input.
func Compose(panels []panel.Panel, opts Options) (Script, error) {
	opts = opts.withDefaults()

	units := make([]Unit, 0, len(panels)+2)
	if opts.Title != "" {
		units = append(units, opts.unit(KindIntro, Intro(opts.Title), -1, -1))
	}

	lastPage := -1
	for _, p := range panels {
		text := Clean(p.Text)
		if opts.Filter != nil && text != "" {
			filtered, err := opts.Filter(text, p.Page, p.Rank)
			if err != nil {
				return Script{}, fmt.Errorf("filter page %d panel %d: %w", p.Page, p.Rank, err)
			}
			text = Clean(filtered)
		}

		placeholder := text == ""
		if placeholder {
			text = opts.Placeholder
		}
		if opts.PageTransitions && p.Page != lastPage && lastPage >= 0 {
			text = DefaultPageTransition + " " + text
		}
		lastPage = p.Page

		u := opts.unit(KindPanel, text, p.Page, p.Rank)
		u.Placeholder = placeholder
		units = append(units, u)
	}

	if opts.Title != "" {
		units = append(units, opts.unit(KindOutro, Outro(), -1, -1))
	}

	texts := make([]string, len(units))
	for i := range units {
		units[i].Index = i
		texts[i] = units[i].Text
	}
	return Script{Units: units, Text: strings.Join(texts, opts.Separator)}, nil
}

// Weights returns the per-unit spoken length estimates.
func (s Script) Weights() []float64 {
	w := make([]float64, len(s.Units))
	for i, u := range s.Units {
		w[i] = u.Weight
	}
	return w
}

// Intro is the opening line for a titled recap.
func Intro(title string) string {
	return fmt.Sprintf("Welcome to the recap of %s. Let's see what happens in this chapter.", title)
}

// Outro is the closing line for a titled recap.
func Outro() string {
	return "And that's the end of this chapter. Thanks for watching, and don't forget to subscribe for more recaps!"
}

// Clean normalizes OCR output for speech: whitespace runs collapse to one
// space and vertical bars, a common misread of a capital I, are replaced.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "|", "I")
	return strings.Join(strings.Fields(text), " ")
}

// EstimateSeconds estimates how long text takes to speak. Every unit counts
// as at least one word so placeholders still get screen time.
func EstimateSeconds(text string, wordsPerSecond float64) float64 {
	if wordsPerSecond <= 0 {
		wordsPerSecond = DefaultWordsPerSecond
	}
	words := len(strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) && r != '\''
	}))
	if words < 1 {
		words = 1
	}
	return float64(words) / wordsPerSecond
}

func (o Options) withDefaults() Options {
	if o.Placeholder == "" {
		o.Placeholder = DefaultPlaceholder
	}
	if o.Separator == "" {
		o.Separator = DefaultSeparator
	}
	if o.WordsPerSecond <= 0 {
		o.WordsPerSecond = DefaultWordsPerSecond
	}
	return o
}

func (o Options) unit(kind Kind, text string, page, rank int) Unit {
	return Unit{
		Kind:   kind,
		Text:   text,
		Page:   page,
		Rank:   rank,
		Weight: EstimateSeconds(text, o.WordsPerSecond),
	}
}
