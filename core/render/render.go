// Package render turns screen payloads returned by the assistant into plain
// text for terminal surfaces. HTML and markdown payloads are reduced to
// their visible text.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/koscakluka/ema-assistant/core/history"
	"github.com/muesli/reflow/wordwrap"
	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const DefaultWidth = 80

var (
	ErrEmptyPayload      = errors.New("empty screen payload")
	ErrUnsupportedFormat = errors.New("unsupported screen format")
	ErrMalformedPayload  = errors.New("malformed screen payload")
)

type Renderer struct {
	width int
}

type Option func(*Renderer)

// WithWidth sets the column text is wrapped at. Zero disables wrapping.
func WithWidth(width int) Option {
	return func(r *Renderer) {
		r.width = width
	}
}

func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{width: DefaultWidth}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) Render(payload history.ScreenPayload) (string, error) {
	if len(payload.Data) == 0 {
		return "", ErrEmptyPayload
	}
	if !utf8.Valid(payload.Data) {
		return "", fmt.Errorf("%w: not valid utf-8", ErrMalformedPayload)
	}

	var text string
	switch strings.ToLower(payload.Format) {
	case "html":
		var err error
		if text, err = htmlToText(payload.Data); err != nil {
			return "", err
		}
	case "markdown", "md":
		var htmlBuf bytes.Buffer
		if err := goldmark.Convert(payload.Data, &htmlBuf); err != nil {
			return "", fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		var err error
		if text, err = htmlToText(htmlBuf.Bytes()); err != nil {
			return "", err
		}
	case "text", "plain":
		text = strings.TrimSpace(string(payload.Data))
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, payload.Format)
	}

	if r.width > 0 {
		text = wordwrap.String(text, r.width)
	}
	return text, nil
}

func htmlToText(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	w := &textWriter{}
	w.walk(doc)
	return w.String(), nil
}

// textWriter collects visible text, one line per block element.
type textWriter struct {
	lines   []string
	current strings.Builder
}

func (w *textWriter) walk(node *html.Node) {
	switch node.Type {
	case html.TextNode:
		w.writeText(node.Data)
		return
	case html.ElementNode:
		switch node.DataAtom {
		case atom.Head, atom.Script, atom.Style, atom.Template, atom.Noscript:
			return
		case atom.Br:
			w.breakLine()
			return
		case atom.Li:
			w.breakLine()
			w.current.WriteString("• ")
		case atom.Img:
			if alt := attribute(node, "alt"); alt != "" {
				w.writeText("[" + alt + "]")
			}
			return
		}
	}

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		w.walk(child)
	}

	if node.Type == html.ElementNode && isBlock(node.DataAtom) {
		w.breakLine()
	}
}

func (w *textWriter) writeText(text string) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return
	}

	current := w.current.String()
	if current != "" && !strings.HasSuffix(current, " ") && startsWithSpace(text) {
		w.current.WriteByte(' ')
	}
	w.current.WriteString(strings.Join(words, " "))
	if endsWithSpace(text) {
		w.current.WriteByte(' ')
	}
}

func (w *textWriter) breakLine() {
	line := strings.TrimSpace(w.current.String())
	w.current.Reset()
	if line != "" && line != "•" {
		w.lines = append(w.lines, line)
	}
}

func (w *textWriter) String() string {
	w.breakLine()
	return strings.Join(w.lines, "\n")
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Header, atom.Footer,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Ul, atom.Ol, atom.Li, atom.Tr, atom.Table, atom.Blockquote, atom.Pre:
		return true
	}
	return false
}

func attribute(node *html.Node, key string) string {
	for _, attr := range node.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func startsWithSpace(text string) bool {
	return text != "" && strings.ContainsRune(" \t\n\r", rune(text[0]))
}

func endsWithSpace(text string) bool {
	return text != "" && strings.ContainsRune(" \t\n\r", rune(text[len(text)-1]))
}
