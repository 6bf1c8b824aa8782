package render

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts markdown source to an HTML fragment. Safe for
// concurrent use; goldmark instances are stateless across Convert calls.
type Renderer struct {
	md goldmark.Markdown
}

// New builds the project-wide markdown renderer: GitHub Flavored
// Markdown (tables, strikethrough, task lists, autolinks), fenced-code
// syntax highlighting, stable heading anchors, raw HTML passed through.
func New() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
		),
	)
	return &Renderer{md: md}
}

// Render converts src to an HTML fragment. Output is either the complete
// fragment or an error, never a partial result. Identical input yields
// identical output.
func (r *Renderer) Render(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return buf.Bytes(), nil
}
