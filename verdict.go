package numguess

import (
	"sort"
	"strings"
	"unicode"
)

// Verdict is the classified meaning of one reply to one guess.
type Verdict int

const (
	VerdictMalformed Verdict = iota
	VerdictCorrect
	VerdictIncorrect
)

func (v Verdict) String() string {
	switch v {
	case VerdictCorrect:
		return "correct"
	case VerdictIncorrect:
		return "incorrect"
	default:
		return "malformed"
	}
}

// Vocabulary holds the affirmative and negative phrases of the prompt language. Phrases are matched
// case-insensitively on word boundaries, so "correct" never matches inside "incorrect".
//
// Negators are single words that decide nothing by themselves but make an affirmative reply ambiguous: "not the
// correct number" is Malformed, not Correct. A negator inside a matched phrase does not count.
type Vocabulary struct {
	Affirmative []string `yaml:"affirmative"`
	Negative    []string `yaml:"negative"`
	Negators    []string `yaml:"negators"`
}

// DefaultVocabulary is the English vocabulary matching the default prompts.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Affirmative: []string{"correct", "yes"},
		Negative:    []string{"not correct", "is not correct", "isn't correct", "incorrect", "wrong", "no", "nope"},
		Negators:    []string{"not", "never", "cannot", "isn't", "wasn't", "aren't", "don't", "doesn't", "didn't", "can't"},
	}
}

type phrase struct {
	words    []string
	negative bool
}

// compile returns the phrases sorted so that longer phrases are tried first; with equal length, negative
// phrases win. This is what lets "not correct" take precedence over "correct".
func (v Vocabulary) compile() []phrase {
	var phrases []phrase
	add := func(list []string, negative bool) {
		for _, p := range list {
			words := tokenize(p)
			if len(words) > 0 {
				phrases = append(phrases, phrase{words: words, negative: negative})
			}
		}
	}
	add(v.Negative, true)
	add(v.Affirmative, false)

	sort.SliceStable(phrases, func(i, j int) bool {
		if len(phrases[i].words) != len(phrases[j].words) {
			return len(phrases[i].words) > len(phrases[j].words)
		}
		return phrases[i].negative && !phrases[j].negative
	})
	return phrases
}

func tokenize(s string) []string {
	s = strings.ReplaceAll(strings.ToLower(s), "’", "'")
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// Parse classifies a reply. The reply is split into lowercase words and scanned left to right for vocabulary
// phrases. The reply is Correct when only affirmative phrases are found, Incorrect when only negative ones are found,
// and Malformed when it contains both kinds or neither. An affirmative reply that also contains a negator is
// Malformed.
func (v Vocabulary) Parse(reply string) Verdict {
	words := tokenize(reply)
	phrases := v.compile()

	negators := make(map[string]struct{}, len(v.Negators))
	for _, n := range v.Negators {
		for _, w := range tokenize(n) {
			negators[w] = struct{}{}
		}
	}

	var affirmative, negative, negated bool
	for i := 0; i < len(words); {
		matched := 0
		for _, p := range phrases {
			if hasPrefix(words[i:], p.words) {
				matched = len(p.words)
				if p.negative {
					negative = true
				} else {
					affirmative = true
				}
				break
			}
		}
		if matched == 0 {
			if _, ok := negators[words[i]]; ok {
				negated = true
			}
			matched = 1
		}
		i += matched
	}

	switch {
	case affirmative && !negative && !negated:
		return VerdictCorrect
	case negative && !affirmative:
		return VerdictIncorrect
	default:
		return VerdictMalformed
	}
}

func hasPrefix(words, prefix []string) bool {
	if len(words) < len(prefix) {
		return false
	}
	for i := range prefix {
		if words[i] != prefix[i] {
			return false
		}
	}
	return true
}

// ParseVerdict classifies a reply with DefaultVocabulary.
func ParseVerdict(reply string) Verdict {
	return DefaultVocabulary().Parse(reply)
}
