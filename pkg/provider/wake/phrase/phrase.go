// Package phrase implements a transcription-based wake matcher: completed
// speech segments are transcribed and the text is compared against the wake
// phrase using Double Metaphone phonetic encoding with Jaro-Winkler ranking.
//
// Matching proceeds in three stages:
//
//  1. Literal: the normalised transcript contains the wake phrase (or one of
//     its configured variants) as a substring. This is the fast, unambiguous
//     path and wins the transcriber's own confidence.
//
//  2. Phonetic: phonetic codes are computed for every n-gram of the
//     transcript that has the same token count as the wake phrase. An n-gram
//     whose codes overlap those of the phrase becomes a candidate and is
//     ranked by Jaro-Winkler; the best candidate above the phonetic
//     threshold wins.
//
//  3. Fuzzy: when no phonetic candidate exists, a pure Jaro-Winkler pass
//     over the same n-grams with a stricter threshold catches spellings the
//     metaphone encoder misses.
//
// Variants cover common mispronunciations ("hey jeanie", "heygenie") the way
// a keyword list would; they participate in all three stages.
package phrase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/genievoice/genie/pkg/audio"
	"github.com/genievoice/genie/pkg/provider/stt"
	"github.com/genievoice/genie/pkg/provider/wake"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.88
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched n-gram to be accepted. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate is found and the matcher falls back to pure string
// similarity. Default: 0.88.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// WithVariants adds alternate spellings of the wake phrase that should also
// count as literal matches (e.g. "hey jeanie" for "hey genie").
func WithVariants(variants ...string) Option {
	return func(m *Matcher) {
		m.variants = append(m.variants, variants...)
	}
}

// Matcher implements [wake.SegmentMatcher] by transcribing each segment and
// comparing the text against the wake phrase. Safe for concurrent use when
// the underlying transcriber is.
type Matcher struct {
	transcriber stt.Transcriber
	phrase      string
	variants    []string

	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a matcher for the given wake phrase backed by transcriber.
func New(transcriber stt.Transcriber, wakePhrase string, opts ...Option) (*Matcher, error) {
	if transcriber == nil {
		return nil, fmt.Errorf("phrase: transcriber must not be nil")
	}
	wakePhrase = normalise(wakePhrase)
	if wakePhrase == "" {
		return nil, fmt.Errorf("phrase: wake phrase must not be empty")
	}
	m := &Matcher{
		transcriber:       transcriber,
		phrase:            wakePhrase,
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	for i, v := range m.variants {
		m.variants[i] = normalise(v)
	}
	return m, nil
}

// MatchSegment transcribes seg and returns an Event when the transcript
// contains the wake phrase, literally or phonetically. A segment whose
// transcript is empty yields (nil, nil).
func (m *Matcher) MatchSegment(ctx context.Context, seg *audio.SpeechSegment) (*wake.Event, error) {
	tr, err := m.transcriber.Transcribe(ctx, seg)
	if err != nil {
		return nil, fmt.Errorf("phrase: transcribe segment: %w", err)
	}
	text := normalise(tr.Text)
	if text == "" {
		return nil, nil
	}

	confidence, matched := m.score(text)
	if !matched {
		return nil, nil
	}
	if tr.Confidence > 0 {
		confidence = min(confidence, tr.Confidence)
	}
	return &wake.Event{
		Timestamp:  time.Now(),
		Confidence: confidence,
		Phrase:     m.phrase,
		Audio:      seg,
	}, nil
}

// score runs the three matching stages against a normalised transcript.
func (m *Matcher) score(text string) (confidence float64, matched bool) {
	// Stage 1: literal containment of the phrase or a variant.
	if strings.Contains(text, m.phrase) {
		return 1.0, true
	}
	for _, v := range m.variants {
		if v != "" && strings.Contains(text, v) {
			return 0.95, true
		}
	}

	phraseTokens := strings.Fields(m.phrase)
	phraseCodes := codesForTokens(phraseTokens)
	grams := ngrams(strings.Fields(text), len(phraseTokens))

	// Stage 2: phonetic candidates ranked by Jaro-Winkler.
	var best float64
	for _, g := range grams {
		if !codesOverlap(codesForTokens(g), phraseCodes) {
			continue
		}
		if s := similarity(g, phraseTokens); s > best {
			best = s
		}
	}
	if best >= m.phoneticThreshold {
		return best, true
	}

	// Stage 3: fuzzy fallback over the same n-grams.
	best = 0
	for _, g := range grams {
		if s := similarity(g, phraseTokens); s > best {
			best = s
		}
	}
	if best >= m.fuzzyThreshold {
		return best, true
	}
	return 0, false
}

// similarity compares two token slices both as joined strings and as
// concatenations without spaces, so "heygenie" still aligns with "hey genie".
func similarity(a, b []string) float64 {
	score := matchr.JaroWinkler(strings.Join(a, " "), strings.Join(b, " "), false)
	if s := matchr.JaroWinkler(strings.Join(a, ""), strings.Join(b, ""), false); s > score {
		score = s
	}
	return score
}

// ngrams returns all contiguous token windows of length n, plus the single
// joined window when the text has fewer tokens than n.
func ngrams(tokens []string, n int) [][]string {
	if n <= 0 || len(tokens) == 0 {
		return nil
	}
	if len(tokens) <= n {
		return [][]string{tokens}
	}
	out := make([][]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		out = append(out, tokens[i:i+n])
	}
	return out
}

// codesForTokens computes the Double Metaphone primary and secondary codes
// for each token. Empty codes are omitted.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// normalise lowercases text and strips everything but letters, digits and
// spaces, collapsing runs of whitespace.
func normalise(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

var _ wake.SegmentMatcher = (*Matcher)(nil)
