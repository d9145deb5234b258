package chunker

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

var markdownHeading = regexp.MustCompile(`(?m)^#{1,6}\s+\S`)

func looksLikeMarkdown(s string) bool {
	return markdownHeading.MatchString(s)
}

// markdownSections splits markdown input at H1/H2 boundaries using the
// goldmark AST, so fenced code blocks and setext-style headings don't
// confuse the paragraph scanner. Section titles carry the heading
// hierarchy ("Installation > Prerequisites"). Oversized sections are
// re-chunked with the sliding window, like any other section.
//
// Returns nil when the document has no headings or cannot be parsed; the
// dispatcher then falls back to the paragraph-based splitter.
func markdownSections(input string, opts Options) []Section {
	source := []byte(input)
	md := goldmark.New(goldmark.WithParserOptions(parser.WithAutoHeadingID()))
	doc := md.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil || len(tree.Items) == 0 {
		return nil
	}

	maxSize := opts.TargetSize * 2

	var sections []Section
	collectSections(doc, source, tree.Items, nil, maxSize, opts, &sections)
	return sections
}

// collectSections walks TOC items depth-first, extracting the text between
// each heading and the next same-or-higher-level heading.
func collectSections(doc ast.Node, source []byte, items toc.Items, ancestors []string, maxSize int, opts Options, out *[]Section) {
	for i, item := range items {
		path := append(ancestors, string(item.Title))
		title := strings.Join(path, " > ")

		heading := headingByID(doc, string(item.ID))
		if heading == nil || heading.Lines().Len() == 0 {
			continue
		}

		start := heading.Lines().At(0)
		var end text.Segment
		if i+1 < len(items) {
			if next := headingByID(doc, string(items[i+1].ID)); next != nil && next.Lines().Len() > 0 {
				end = next.Lines().At(0)
			}
		} else {
			end = nextBoundary(doc, heading, heading.(*ast.Heading).Level)
		}

		content := sectionBody(source, start, end)
		*out = append(*out, capSection(title, content, maxSize, opts)...)

		if len(item.Items) > 0 {
			collectSections(doc, source, item.Items, path, maxSize, opts, out)
		}
	}
}

// headingByID finds the heading node carrying the auto-generated ID.
func headingByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			if attr, ok := n.(*ast.Heading).AttributeString("id"); ok {
				if b, ok := attr.([]byte); ok && string(b) == id {
					found = n
					return ast.WalkStop, nil
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// nextBoundary locates the first heading after current at the same or a
// higher level. A zero segment means the section runs to end of document.
func nextBoundary(root, current ast.Node, level int) text.Segment {
	var boundary text.Segment
	passed := false
	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		if !passed {
			if n == current {
				passed = true
			}
			return ast.WalkContinue, nil
		}
		h := n.(*ast.Heading)
		if h.Level <= level && h.Lines().Len() > 0 {
			boundary = h.Lines().At(0)
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return boundary
}

// sectionBody extracts the text between two heading lines, dropping the
// heading line itself (the title is carried separately).
func sectionBody(source []byte, start, end text.Segment) string {
	var raw string
	if end.Start == 0 && end.Stop == 0 {
		raw = string(source[start.Start:])
	} else {
		raw = string(source[start.Start:end.Start])
	}
	if _, rest, found := strings.Cut(raw, "\n"); found {
		raw = rest
	}
	return strings.TrimSpace(raw)
}
