package chunker

import "strings"

// abbreviations lists dotted tokens that must not be treated as sentence
// terminators. Legal documents are dense with these ("U.S. Corp. v. ...").
var abbreviations = []string{
	"Dr.", "Mr.", "Mrs.", "Ms.", "Sr.", "Jr.",
	"Inc.", "Ltd.", "Corp.", "Co.",
	"etc.", "vs.", "e.g.", "i.e.", "et al.",
	"Ph.D.", "U.S.", "U.K.",
	"No.", "Vol.", "Sec.", "Art.", "Fig.", "Ref.",
}

const dotPlaceholder = "\x00"

// SplitSentences splits text into sentences. A boundary is a '.', '!' or '?'
// followed by whitespace and an upper-case letter or digit. Dots inside the
// protected abbreviation list never count as boundaries.
func SplitSentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	// Shield abbreviation dots, split, then restore.
	shielded := text
	for _, abbr := range abbreviations {
		placeholder := strings.ReplaceAll(abbr, ".", dotPlaceholder)
		shielded = strings.ReplaceAll(shielded, abbr, placeholder)
	}

	var sentences []string
	runes := []rune(shielded)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		// Look past any whitespace run for an upper-case letter or digit.
		j := i + 1
		for j < len(runes) && isSpace(runes[j]) {
			j++
		}
		if j == i+1 || j >= len(runes) || !startsNewSentence(runes[j]) {
			continue
		}
		sentences = appendSentence(sentences, string(runes[start:i+1]))
		start = j
	}
	if start < len(runes) {
		sentences = appendSentence(sentences, string(runes[start:]))
	}

	return sentences
}

func appendSentence(sentences []string, raw string) []string {
	s := strings.TrimSpace(strings.ReplaceAll(raw, dotPlaceholder, "."))
	if s == "" {
		return sentences
	}
	return append(sentences, s)
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func startsNewSentence(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
