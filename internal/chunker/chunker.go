// Package chunker splits raw document text into retrieval-sized chunks.
//
// Two strategies are available: a sentence-aware sliding window with overlap
// for flowing prose, and a hierarchical splitter that follows document
// structure (numbered sections, ALL-CAPS headings, contract clauses,
// markdown headers) for structured documents. Chunk selects between them.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Options controls chunk sizing for the sliding-window strategy.
type Options struct {
	// TargetSize is the soft maximum chunk length in characters.
	TargetSize int
	// Overlap is how many trailing characters of a closed chunk seed the
	// next one. Overlap is taken at sentence granularity, so the carried
	// text never exceeds this budget.
	Overlap int
	// MinChunkSize drops chunks too short to carry standalone meaning.
	MinChunkSize int
}

// DefaultOptions match the sizes the ingestion pipeline uses: roughly
// 100-150 words per chunk with a sentence of carried context.
func DefaultOptions() Options {
	return Options{TargetSize: 500, Overlap: 100, MinChunkSize: 50}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TargetSize <= 0 {
		o.TargetSize = d.TargetSize
	}
	if o.Overlap < 0 {
		o.Overlap = d.Overlap
	}
	if o.MinChunkSize <= 0 {
		o.MinChunkSize = d.MinChunkSize
	}
	return o
}

// SlidingWindow chunks text by accumulating whole sentences until TargetSize
// would be exceeded, then closes the chunk and seeds the next one with the
// trailing sentences that fit within Overlap characters. Empty or
// whitespace-only input yields nil, never an error.
func SlidingWindow(text string, opts Options) []string {
	opts = opts.withDefaults()

	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0

	flush := func() {
		joined := strings.Join(current, " ")
		if len(joined) >= opts.MinChunkSize {
			chunks = append(chunks, joined)
		}
	}

	for _, sentence := range sentences {
		if currentLen+len(sentence) > opts.TargetSize && len(current) > 0 {
			flush()

			// Carry trailing sentences into the next chunk, newest last,
			// stopping once the overlap budget is spent.
			var carried []string
			carriedLen := 0
			for i := len(current) - 1; i >= 0; i-- {
				s := current[i]
				if carriedLen+len(s) > opts.Overlap {
					break
				}
				carried = append([]string{s}, carried...)
				carriedLen += len(s)
			}

			current = append(carried, sentence)
			currentLen = carriedLen + len(sentence)
			continue
		}
		current = append(current, sentence)
		currentLen += len(sentence)
	}

	if len(current) > 0 {
		flush()
	}

	return chunks
}

// Section is one logical unit of a structured document: a heading and the
// content accumulated beneath it.
type Section struct {
	Title   string
	Content string
}

// sectionPatterns recognize header-like paragraphs in structured documents.
// Anchored at paragraph start; keyword patterns are case-insensitive, the
// ALL-CAPS pattern deliberately is not.
var sectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^#+\s+.+`),                       // markdown headers
	regexp.MustCompile(`^\d+\.?\s+[A-Z][A-Za-z\s]+$`),    // "1. SECTION NAME"
	regexp.MustCompile(`^[A-Z][A-Z\s]{3,}:?$`),           // ALL CAPS headings
	regexp.MustCompile(`(?i)^Article\s+[IVX\d]+[:.]?\s*`), // Article I / Article 1
	regexp.MustCompile(`(?i)^Section\s+\d+[:.]?\s*`),     // Section 1
	regexp.MustCompile(`(?i)^WHEREAS`),                   // contract clauses
	regexp.MustCompile(`(?i)^NOW THEREFORE`),
	regexp.MustCompile(`(?i)^SCHEDULE\s+[A-Z0-9]+`),
	regexp.MustCompile(`(?i)^EXHIBIT\s+[A-Z0-9]+`),
	regexp.MustCompile(`(?i)^APPENDIX\s+[A-Z0-9]+`),
}

// structureMarkers is the cheap presence test the dispatcher uses to decide
// whether a document is structured at all.
var structureMarkers = regexp.MustCompile(`(?m)(^#+\s+|^\d+\.\s+[A-Z]|^[A-Z][A-Z\s]{3,}:|^Article\s+|^Section\s+|^WHEREAS)`)

// minSectionContent drops sections whose accumulated body is too short to
// stand alone (stray headers, signature lines).
const minSectionContent = 50

// headerTitleLimit caps how much of a header paragraph becomes the label.
const headerTitleLimit = 100

// Hierarchical splits text along structural boundaries. Paragraphs that look
// like headers open a new section; everything else accumulates under the most
// recent header (the implicit first section is "Preamble"). Sections larger
// than maxSize are re-chunked with the sliding window and labeled
// "{title} (Part N)".
func Hierarchical(text string, maxSize int, opts Options) []Section {
	opts = opts.withDefaults()
	if maxSize <= 0 {
		maxSize = opts.TargetSize * 2
	}

	var sections []Section
	currentTitle := "Preamble"
	var body []string

	flush := func() {
		content := strings.Join(body, "\n\n")
		sections = append(sections, capSection(currentTitle, content, maxSize, opts)...)
		body = body[:0]
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if isSectionHeader(para) {
			flush()
			currentTitle = headerTitle(para)
			continue
		}
		body = append(body, para)
	}
	flush()

	return sections
}

// capSection emits a section, re-chunking its content when it exceeds
// maxSize. Undersized sections are dropped.
func capSection(title, content string, maxSize int, opts Options) []Section {
	if len(content) <= minSectionContent {
		return nil
	}
	if len(content) <= maxSize {
		return []Section{{Title: title, Content: content}}
	}

	sub := SlidingWindow(content, Options{
		TargetSize:   maxSize,
		Overlap:      opts.Overlap,
		MinChunkSize: opts.MinChunkSize,
	})
	sections := make([]Section, 0, len(sub))
	for i, chunk := range sub {
		sections = append(sections, Section{
			Title:   fmt.Sprintf("%s (Part %d)", title, i+1),
			Content: chunk,
		})
	}
	return sections
}

func isSectionHeader(para string) bool {
	for _, pattern := range sectionPatterns {
		if pattern.MatchString(para) {
			return true
		}
	}
	return false
}

func headerTitle(para string) string {
	if line, _, found := strings.Cut(para, "\n"); found {
		para = strings.TrimSpace(line)
	}
	if len(para) > headerTitleLimit {
		// Back off to a rune boundary so the cap never splits a rune.
		limit := headerTitleLimit
		for limit > 0 && !utf8.RuneStart(para[limit]) {
			limit--
		}
		para = para[:limit]
	}
	return para
}

// structuredTypes are caller-supplied hints that force hierarchical
// treatment regardless of what the content looks like.
var structuredTypes = map[string]bool{
	"contract":  true,
	"legal":     true,
	"agreement": true,
}

// Chunk picks the best strategy for the document and returns chunk texts.
//
// Structured genres (contract/legal/agreement hints) and documents with
// visible structural markers go through the hierarchical splitter, each
// chunk prefixed with its section label in brackets; markdown-shaped input
// additionally gets header-aware splitting via the goldmark parser.
// Everything else uses the sentence sliding window. The dispatch is a
// heuristic: malformed structured documents silently fall back to flowing
// treatment.
func Chunk(text, docType string, opts Options) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	opts = opts.withDefaults()

	hint := strings.ToLower(strings.TrimSpace(docType))
	if structuredTypes[hint] || structureMarkers.MatchString(text) {
		var sections []Section
		if looksLikeMarkdown(text) {
			sections = markdownSections(text, opts)
		}
		if len(sections) == 0 {
			sections = Hierarchical(text, opts.TargetSize*2, opts)
		}

		chunks := make([]string, 0, len(sections))
		for _, section := range sections {
			chunks = append(chunks, fmt.Sprintf("[%s]\n%s", section.Title, section.Content))
		}
		if len(chunks) > 0 {
			return chunks
		}
		// Structure detected but nothing survived sectioning; fall through.
	}

	return SlidingWindow(text, opts)
}
