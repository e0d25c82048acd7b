package transcript

import (
	"strings"

	"github.com/MrWong99/vocepta/internal/transcript/phonetic"
)

// Correction captures a single substitution made by the corrector.
type Correction struct {
	// Original is the text span as produced by the STT provider.
	Original string

	// Corrected is the lexicon term that replaced it.
	Corrected string

	// Confidence is the match score in (0.0, 1.0].
	Confidence float64
}

// CorrectorOption is a functional option for configuring a [Corrector].
type CorrectorOption func(*Corrector)

// WithMatcher replaces the default phonetic matcher, for callers that need
// non-default thresholds.
func WithMatcher(m *phonetic.Matcher) CorrectorOption {
	return func(c *Corrector) {
		c.matcher = m
	}
}

// Corrector normalizes domain terms in caller speech before the text
// reaches the language model. The STT layer reliably mangles proper nouns
// such as the business's own name, carrier names, and coverage products,
// and a wrong token in the conversation history degrades every later
// completion.
//
// Correction is deterministic and in-process: no network calls, no model
// round-trips, so it adds nothing measurable to turn latency. A nil
// *Corrector is a valid no-op.
//
// Corrector is safe for concurrent use after construction.
type Corrector struct {
	matcher *phonetic.Matcher
	lexicon *phonetic.Entities
}

// NewCorrector builds a corrector over the given lexicon of domain terms.
// Multi-word terms are matched against n-gram windows of the input.
func NewCorrector(lexicon []string, opts ...CorrectorOption) *Corrector {
	c := &Corrector{
		matcher: phonetic.New(),
		lexicon: phonetic.PrepareEntities(lexicon),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct replaces misheard lexicon terms in text and reports every
// substitution made. The input is returned unchanged when the corrector is
// nil, the lexicon is empty, or nothing matches.
//
// The algorithm:
//  1. Tokenize the text into whitespace-separated words.
//  2. At each token position, try n-gram windows from the longest lexicon
//     term's word count down to 1. Accept the longest matching window so
//     multi-word terms take precedence over partial single-word matches.
//  3. Emit matched terms (or unmatched tokens) and advance the cursor by
//     the number of tokens consumed.
func (c *Corrector) Correct(text string) (string, []Correction) {
	if c == nil || c.lexicon.Len() == 0 {
		return text, nil
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	maxWords := c.lexicon.MaxWords()

	var output []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		// Clamp window size to remaining tokens.
		maxN := maxWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			term, conf, ok := c.matcher.MatchPrepared(window, c.lexicon)
			if !ok {
				continue
			}

			output = append(output, strings.Fields(term)...)
			corrections = append(corrections, Correction{
				Original:   window,
				Corrected:  term,
				Confidence: conf,
			})
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}
