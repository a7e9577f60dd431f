// Package markdown converts markdown text into Signal's plain-text
// representation: the rendered text plus a list of style spans with
// UTF-16 code-unit offsets, the indexing scheme signal-cli uses for
// its textStyle parameter.
package markdown

import (
	"fmt"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Style is a Signal text style tag.
type Style string

const (
	StyleBold          Style = "BOLD"
	StyleItalic        Style = "ITALIC"
	StyleStrikethrough Style = "STRIKETHROUGH"
	StyleMonospace     Style = "MONOSPACE"
)

// Span is a style annotation over a contiguous run of the rendered
// text. Start and Length are in UTF-16 code units; characters at or
// above U+10000 count as two units.
type Span struct {
	Start  int
	Length int
	Style  Style
}

// String renders the span in the "start:length:STYLE" form that the
// signal-cli send RPC accepts in its textStyle array.
func (s Span) String() string {
	return fmt.Sprintf("%d:%d:%s", s.Start, s.Length, s.Style)
}

// EncodeSpans renders spans into the wire form for the send RPC.
// Returns nil for an empty span list so the textStyle parameter is
// omitted entirely.
func EncodeSpans(spans []Span) []string {
	if len(spans) == 0 {
		return nil
	}
	encoded := make([]string, len(spans))
	for i, s := range spans {
		encoded[i] = s.String()
	}
	return encoded
}

// The parser configuration never changes and a goldmark parser is safe
// to share; per-call state lives in the reader passed to Parse.
var (
	parserInstance goldmark.Markdown
	parserOnce     sync.Once
)

func getParser() goldmark.Markdown {
	parserOnce.Do(func() {
		parserInstance = goldmark.New(
			goldmark.WithExtensions(extension.Strikethrough),
		)
	})
	return parserInstance
}

// Convert renders markdown into plain text and style spans. It is a
// pure function: deterministic, no I/O. Trailing newlines are trimmed
// from the returned text; spans never cover trimmed characters since
// styles close before block separators are written.
func Convert(input string) (string, []Span) {
	source := []byte(input)
	document := getParser().Parser().Parse(text.NewReader(source))

	b := &builder{source: source}
	b.walkChildren(document)

	return strings.TrimRight(b.text.String(), "\n"), b.spans
}

// utf16Len returns the number of UTF-16 code units in s.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// builder accumulates rendered text and spans during the AST walk.
// offset tracks the UTF-16 length of everything written so far, and
// trailing counts newlines at the end of the buffer so block
// separation never has to re-scan the text.
type builder struct {
	source   []byte
	text     strings.Builder
	offset   int
	trailing int
	spans    []Span
}

func (b *builder) append(fragment string) {
	if fragment == "" {
		return
	}
	b.text.WriteString(fragment)
	b.offset += utf16Len(fragment)

	newTrailing := 0
	allNewlines := true
	for i := len(fragment) - 1; i >= 0; i-- {
		if fragment[i] == '\n' {
			newTrailing++
		} else {
			allNewlines = false
			break
		}
	}
	if allNewlines {
		b.trailing += newTrailing
	} else {
		b.trailing = newTrailing
	}
}

// separateBlock ensures exactly one blank line between the previous
// content and the block about to be rendered. A no-op at the start of
// the document.
func (b *builder) separateBlock() {
	if b.offset == 0 {
		return
	}
	for b.trailing < 2 {
		b.append("\n")
	}
}

func (b *builder) ensureBlankLine() {
	for b.trailing < 2 {
		b.append("\n")
	}
}

// applyStyle records a span from start to the current offset,
// suppressing zero-length spans (empty emphasis and the like).
func (b *builder) applyStyle(style Style, start int) {
	length := b.offset - start
	if length > 0 {
		b.spans = append(b.spans, Span{Start: start, Length: length, Style: style})
	}
}

func (b *builder) walkChildren(node ast.Node) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		b.walkNode(child)
	}
}

func (b *builder) walkNode(node ast.Node) {
	switch n := node.(type) {
	case *ast.Paragraph:
		b.separateBlock()
		b.walkChildren(n)
		b.append("\n\n")

	case *ast.Heading:
		// Signal has no heading style; headings render as bold text
		// followed by a blank line.
		b.separateBlock()
		start := b.offset
		b.walkChildren(n)
		b.applyStyle(StyleBold, start)
		b.append("\n\n")

	case *ast.Emphasis:
		style := StyleItalic
		if n.Level >= 2 {
			style = StyleBold
		}
		start := b.offset
		b.walkChildren(n)
		b.applyStyle(style, start)

	case *extast.Strikethrough:
		start := b.offset
		b.walkChildren(n)
		b.applyStyle(StyleStrikethrough, start)

	case *ast.CodeSpan:
		start := b.offset
		b.append(b.codeSpanText(n))
		b.applyStyle(StyleMonospace, start)

	case *ast.FencedCodeBlock:
		b.renderCodeBlock(n)

	case *ast.CodeBlock:
		b.renderCodeBlock(n)

	case *ast.Text:
		b.append(string(n.Segment.Value(b.source)))
		if n.SoftLineBreak() || n.HardLineBreak() {
			b.append("\n")
		}

	case *ast.String:
		b.append(string(n.Value))

	case *ast.Link:
		b.renderLink(n)

	case *ast.AutoLink:
		b.append(string(n.URL(b.source)))

	case *ast.Image:
		// Images render as their source URL only; alt text is dropped.
		b.append(string(n.Destination))

	case *ast.List:
		b.separateBlock()
		b.renderList(n, false)
		b.append("\n")

	case *ast.Blockquote:
		b.separateBlock()
		b.walkChildren(n)
		b.ensureBlankLine()

	case *ast.ThematicBreak:
		if b.offset > 0 && b.trailing < 1 {
			b.append("\n")
		}
		b.append("---\n\n")

	default:
		// Unknown node kinds render their children only. This keeps the
		// converter forward-compatible with parser extensions.
		b.walkChildren(node)
	}
}

// renderCodeBlock handles both fenced and indented code blocks: the
// raw content styled monospace, trailing newline trimmed before the
// span is measured.
func (b *builder) renderCodeBlock(node ast.Node) {
	var code strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		code.Write(segment.Value(b.source))
	}

	b.separateBlock()
	start := b.offset
	b.append(strings.TrimRight(code.String(), "\n"))
	b.applyStyle(StyleMonospace, start)
	b.append("\n\n")
}

// codeSpanText joins the text segments of an inline code span.
func (b *builder) codeSpanText(node *ast.CodeSpan) string {
	var code strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch c := child.(type) {
		case *ast.Text:
			code.Write(c.Segment.Value(b.source))
		case *ast.String:
			code.Write(c.Value)
		}
	}
	return code.String()
}

// renderLink renders the link text into an isolated sub-builder so the
// decision between "text (url)" and the bare URL never pollutes the
// outer offsets. The sub-builder's spans are relative to the link
// text; when the text is kept they are offset into the outer span
// list, so styling inside link text survives.
func (b *builder) renderLink(node *ast.Link) {
	url := string(node.Destination)
	linkText, linkSpans := b.subRender(node)

	if linkText == "" || linkText == url {
		b.append(url)
		return
	}

	base := b.offset
	b.append(linkText)
	for _, s := range linkSpans {
		b.spans = append(b.spans, Span{Start: s.Start + base, Length: s.Length, Style: s.Style})
	}
	b.append(" (" + url + ")")
}

// subRender walks a node's children in a fresh builder and returns the
// rendered text with spans relative to its start.
func (b *builder) subRender(node ast.Node) (string, []Span) {
	sub := &builder{source: b.source}
	sub.walkChildren(node)
	return sub.text.String(), sub.spans
}

// renderList renders each item on its own line with "N. " or "- "
// prefixes. One level of nesting is supported, indented by two spaces;
// deeper lists render at the same nested indent.
func (b *builder) renderList(list *ast.List, nested bool) {
	ordered := list.IsOrdered()
	start := list.Start
	if start == 0 {
		start = 1
	}

	index := 0
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		var prefix string
		if ordered {
			prefix = fmt.Sprintf("%d. ", start+index)
		} else {
			prefix = "- "
		}
		if nested {
			prefix = "  " + prefix
		}
		b.append(prefix)
		b.renderListItem(item)
		index++
	}
}

// renderListItem flattens item content onto a single line: nested
// paragraphs are inlined, nested sub-lists continue after a forced
// line break.
func (b *builder) renderListItem(item ast.Node) {
	for child := item.FirstChild(); child != nil; child = child.NextSibling() {
		switch c := child.(type) {
		case *ast.Paragraph:
			b.walkChildren(c)
		case *ast.TextBlock:
			b.walkChildren(c)
		case *ast.List:
			b.append("\n")
			b.renderList(c, true)
		default:
			b.walkNode(child)
		}
	}
	b.append("\n")
}
