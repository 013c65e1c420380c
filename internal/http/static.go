package http

import (
	"bytes"
	"context"
	"io/fs"
	stdhttp "net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/a-h/templ"

	"washoku/app/internal/http/templates"
	"washoku/app/internal/i18n"
)

const htmlContentType = "text/html; charset=utf-8"

//go:embed static/robots.txt
var robots []byte

func robotsHandler(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	stdhttp.ServeContent(w, r, "robots.txt", time.Time{}, bytes.NewReader(robots))
}

func (s *Server) registerStaticRoutes() {
	s.mux.HandleFunc("GET /robots.txt", robotsHandler)
	s.mux.Handle("GET /", s.spaHandler())
}

// spaHandler serves files from the SPA build and renders the HTML shell for
// every other path so client-side routes survive a reload.
func (s *Server) spaHandler() stdhttp.Handler {
	var (
		assets fs.FS
		files  stdhttp.Handler
		index  string
	)

	if s.staticDir != "" {
		assets = os.DirFS(s.staticDir)
		files = stdhttp.FileServer(stdhttp.FS(assets))

		if data, err := os.ReadFile(filepath.Join(s.staticDir, "index.html")); err == nil {
			index = string(data)
		} else if s.logger != nil {
			s.logger.WithError(err).WithField("static_dir", s.staticDir).Warn("SPA index.html not found; serving bare shell")
		}
	}

	return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			s.writeNotFound(w, r)
			return
		}

		if assets != nil {
			name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
			if name != "" && name != "index.html" {
				if info, err := fs.Stat(assets, name); err == nil && !info.IsDir() {
					files.ServeHTTP(w, r)
					return
				}
			}
		}

		s.serveShell(w, r, index)
	})
}

func (s *Server) serveShell(w stdhttp.ResponseWriter, r *stdhttp.Request, index string) {
	tag := i18n.Negotiate(r.Header.Get("Accept-Language"))
	cfg := templates.RuntimeConfig{
		SiteName:      siteName,
		MapsAPIKey:    s.mapsAPIKey,
		DefaultLocale: i18n.Default().String(),
		Locale:        tag.String(),
		Locales:       i18n.Supported(),
	}

	var component templ.Component
	if index != "" {
		component = templates.WithConfig(index, cfg)
	} else {
		component = templates.Shell(templates.ShellData{Lang: tag.String(), Title: siteName, Config: cfg})
	}

	body, err := renderComponent(r.Context(), component)
	if err != nil {
		s.recordError(r.Context(), err, "rendering SPA shell", nil)
		stdhttp.Error(w, "internal server error", stdhttp.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", htmlContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(stdhttp.StatusOK)
	if r.Method != stdhttp.MethodHead {
		_, _ = w.Write(body)
	}
}

// writeNotFound answers unknown API paths with a problem document instead of
// the SPA shell.
func (s *Server) writeNotFound(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := context.WithValue(r.Context(), localeContextKey, i18n.Negotiate(r.Header.Get("Accept-Language")))
	problem := newAPIError(stdhttp.StatusNotFound, i18n.Text(LocaleFromContext(ctx), i18n.NotFound)).(*apiError)
	problem.Code = codeNotFound

	w.Header().Set("Content-Type", problemContentType)
	w.WriteHeader(stdhttp.StatusNotFound)
	if err := s.api.Marshal(w, "application/json", problem); err != nil {
		s.recordError(ctx, err, "writing not found response", nil)
	}
}
