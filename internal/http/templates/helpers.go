package templates

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// RawHTML returns a templ component that writes the provided HTML without escaping.
func RawHTML(html string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := io.WriteString(w, html)
		return err
	})
}

// ConfigScript renders the runtime config as a JSON script element.
func ConfigScript(cfg RuntimeConfig) templ.Component {
	return templ.JSONScript(ConfigScriptID, cfg)
}

// Shell renders a bare SPA document, used when no built index.html exists.
func Shell(data ShellData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		head := `<!doctype html><html lang="` + templ.EscapeString(data.Lang) + `"><head>` +
			`<meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1">` +
			`<title>` + templ.EscapeString(data.Title) + `</title>`
		if err := RawHTML(head).Render(ctx, w); err != nil {
			return err
		}
		if err := ConfigScript(data.Config).Render(ctx, w); err != nil {
			return err
		}
		return RawHTML(`</head><body><div id="root"></div></body></html>`).Render(ctx, w)
	})
}

// WithConfig renders a built index.html with the runtime config injected at
// the end of its head. Documents without a head get the config prepended to
// the body instead.
func WithConfig(document string, cfg RuntimeConfig) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		cut := strings.Index(strings.ToLower(document), "</head>")
		if cut < 0 {
			cut = 0
		}
		if err := RawHTML(document[:cut]).Render(ctx, w); err != nil {
			return err
		}
		if err := ConfigScript(cfg).Render(ctx, w); err != nil {
			return err
		}
		return RawHTML(document[cut:]).Render(ctx, w)
	})
}
