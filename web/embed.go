// Package web embeds the dashboard page (dist/) and serves it as a
// single-page application.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

const (
	indexFile = "index.html"

	// The page must be revalidated so a redeploy is picked up at once.
	indexCacheControl = "no-cache"
	assetCacheControl = "public, max-age=3600"
)

// SPAHandler serves static files from dist/. Paths without a matching file
// get index.html so the dashboard can route on the client.
func SPAHandler() http.Handler {
	subFS, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}

	fileServer := http.FileServer(http.FS(subFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if name == "" || name == indexFile || !exists(subFS, name) {
			w.Header().Set("Cache-Control", indexCacheControl)
			r.URL.Path = "/"
			fileServer.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Cache-Control", assetCacheControl)
		fileServer.ServeHTTP(w, r)
	})
}

func exists(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return false
	}
	if info.IsDir() {
		slog.Debug("web: directory requested, serving index", "path", name)
		return false
	}
	return true
}
