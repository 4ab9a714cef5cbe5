package server

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} - attree</title>
<style>
body { font-family: sans-serif; max-width: 46rem; margin: 2rem auto; padding: 0 1rem; color: #222; }
pre { background: #f6f8fa; padding: 0.8rem; overflow-x: auto; }
a { color: #0969da; }
</style>
</head>
<body>
{{.Content}}
<hr><p><a href="/">Back to the tree builder</a></p>
</body>
</html>
`

// registerPages mounts /help and /about, rendered from markdown in the
// configured docs directory. Pages are rendered per request; the files
// are tiny and this keeps edits visible without a restart.
func (s *Server) registerPages(r chi.Router) {
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
	tmpl := template.Must(template.New("page").Parse(pageTemplate))

	r.Get("/help", s.markdownPage(md, tmpl, "Help", "help.md"))
	r.Get("/about", s.markdownPage(md, tmpl, "About", "about.md"))
}

func (s *Server) markdownPage(md goldmark.Markdown, tmpl *template.Template, title, file string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src, err := os.ReadFile(filepath.Join(s.cfg.DocsDir, file))
		if err != nil {
			http.NotFound(w, r)
			return
		}

		var body bytes.Buffer
		if err := md.Convert(src, &body); err != nil {
			http.Error(w, fmt.Sprintf("rendering %s: %v", file, err), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		tmpl.Execute(w, struct {
			Title   string
			Content template.HTML
		}{Title: title, Content: template.HTML(body.String())})
	}
}
