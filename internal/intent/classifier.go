// Package intent scores interview transcripts for completion intent: does
// the speaker want to end the session. Pure functions, no failure mode.
package intent

import (
	"regexp"
	"strings"
	"unicode"
)

// Confidence grades how strongly a transcript signals completion.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Result is the outcome of scoring one transcript.
type Result struct {
	ShouldStop bool
	Confidence Confidence
	Matched    []string
	Score      float64
}

// Tuning holds the scoring thresholds. The defaults are empirically tuned
// and overridable rather than fixed truths.
type Tuning struct {
	High   float64
	Medium float64
	Low    float64
}

// DefaultTuning mirrors the shipped config defaults.
func DefaultTuning() Tuning {
	return Tuning{High: 3.5, Medium: 2.2, Low: 1.6}
}

// contextBonus is added once when a stop word and a context word co-occur.
// Deliberately below the lowest threshold so it cannot trigger on its own.
const contextBonus = 1.4

var (
	// negationPatterns veto completion outright. A speaker saying "not done
	// yet" is asking to continue no matter what else the sentence contains.
	negationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bnot\s+(?:quite\s+|all\s+)?done\b`),
		regexp.MustCompile(`\bnot\s+(?:quite\s+)?finished\b`),
		regexp.MustCompile(`\bnot\s+yet\b`),
		regexp.MustCompile(`\bwhen\s+(?:i'?m|i\s+am|we'?re|we\s+are)\s+done\b`),
		regexp.MustCompile(`\bdon'?t\s+stop\b`),
		regexp.MustCompile(`\bkeep\s+going\b`),
		regexp.MustCompile(`\b(?:one|a\s+few|a\s+couple)\s+more\b`),
	}

	// phrasePatterns is the ordered phrase library. Weights sit in the
	// 1.6 to 2.5 band; labels are the canonical diagnostic names.
	phrasePatterns = []phrasePattern{
		// Explicit statements of being done.
		{regexp.MustCompile(`\b(?:i'?m|i\s+am|we'?re|we\s+are)\s+(?:all\s+)?done\b`), 2.5, "done"},
		{regexp.MustCompile(`\b(?:i'?m|i\s+am|we'?re|we\s+are)\s+finished\b`), 2.5, "finished"},

		// Requests to close the session.
		{regexp.MustCompile(`\bwrap\s+(?:this|it|things)\s+up\b`), 2.0, "wrap-up"},
		{regexp.MustCompile(`\b(?:let'?s\s+)?(?:stop|end)\s+(?:here|now|there|the\s+(?:interview|session|recording))\b`), 2.4, "stop-here"},
		{regexp.MustCompile(`\bcall\s+it\s+a\s+day\b`), 2.0, "call-it-a-day"},

		// Exhausted-material signals.
		{regexp.MustCompile(`\bthat'?s\s+(?:all|everything|it)\b`), 2.2, "thats-all"},
		{regexp.MustCompile(`\bno\s+more\s+(?:questions|stories|to\s+(?:say|tell|add))\b`), 2.2, "no-more"},
		{regexp.MustCompile(`\bnothing\s+(?:else|more)\s+to\s+(?:say|tell|add)\b`), 2.2, "nothing-else"},
		{regexp.MustCompile(`\bthat\s+(?:about\s+)?(?:covers|wraps)\s+it\b`), 2.0, "covers-it"},

		// Farewells.
		{regexp.MustCompile(`\bthanks?(?:\s+you)?\s+for\s+(?:your\s+time|everything)\b`), 1.6, "thanks-closing"},
		{regexp.MustCompile(`\bgood\s*bye\b|\bbye\s+(?:now|bye)\b`), 1.8, "goodbye"},
	}

	// tokenCombos score when every listed token appears anywhere in the
	// transcript, catching paraphrases the phrase library misses.
	tokenCombos = []tokenCombo{
		{[]string{"no", "more", "questions"}, 2.2, "no-more-questions"},
		{[]string{"no", "more", "stories"}, 2.2, "no-more-stories"},
		{[]string{"nothing", "else"}, 1.8, "nothing-else"},
	}

	stopTokens = map[string]struct{}{
		"complete": {},
		"done":     {},
		"end":      {},
		"enough":   {},
		"finished": {},
		"stop":     {},
		"wrap":     {},
	}

	contextTokens = map[string]struct{}{
		"conversation": {},
		"interview":    {},
		"now":          {},
		"questions":    {},
		"recording":    {},
		"session":      {},
		"talking":      {},
		"today":        {},
	}
)

type phrasePattern struct {
	re     *regexp.Regexp
	weight float64
	label  string
}

type tokenCombo struct {
	tokens []string
	weight float64
	label  string
}

// Classify scores one transcript with the default thresholds.
func Classify(transcript string) Result {
	return ClassifyWith(DefaultTuning(), transcript)
}

// ClassifyWith scores one transcript. Total function: any input, including
// empty, yields a Result.
func ClassifyWith(tuning Tuning, transcript string) Result {
	text := normalizeTranscript(transcript)
	if text == "" {
		return Result{Confidence: ConfidenceLow}
	}

	for _, re := range negationPatterns {
		if re.MatchString(text) {
			return Result{Confidence: ConfidenceLow}
		}
	}

	var (
		score  float64
		labels []string
		seen   = map[string]struct{}{}
	)
	record := func(label string, weight float64) {
		score += weight
		if _, ok := seen[label]; ok {
			return
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
	}

	for _, p := range phrasePatterns {
		if p.re.MatchString(text) {
			record(p.label, p.weight)
		}
	}

	tokens := tokenize(text)
	for _, combo := range tokenCombos {
		if containsAllTokens(tokens, combo.tokens) {
			record(combo.label, combo.weight)
		}
	}
	if hasAnyToken(tokens, stopTokens) && hasAnyToken(tokens, contextTokens) {
		record("stop-context", contextBonus)
	}

	result := Result{Score: score, Matched: labels, Confidence: ConfidenceLow}
	switch {
	case score >= tuning.High:
		result.ShouldStop = true
		result.Confidence = ConfidenceHigh
	case score >= tuning.Medium:
		result.ShouldStop = true
		result.Confidence = ConfidenceMedium
	case score >= tuning.Low:
		result.ShouldStop = true
	}
	return result
}

func normalizeTranscript(transcript string) string {
	text := strings.ToLower(strings.TrimSpace(transcript))
	// ASR output sometimes carries typographic apostrophes.
	return strings.ReplaceAll(text, "’", "'")
}

func tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		tokens[field] = struct{}{}
	}
	return tokens
}

func containsAllTokens(tokens map[string]struct{}, wanted []string) bool {
	for _, w := range wanted {
		if _, ok := tokens[w]; !ok {
			return false
		}
	}
	return true
}

func hasAnyToken(tokens, set map[string]struct{}) bool {
	for token := range tokens {
		if _, ok := set[token]; ok {
			return true
		}
	}
	return false
}
