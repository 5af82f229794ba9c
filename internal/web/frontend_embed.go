package web

import (
	"net/http"
	"strings"

	shousaiweb "github.com/roasbeef/shousai/web"
)

// FrontendHandler serves the embedded dashboard. Paths that do not
// match an embedded file fall back to index.html so the page can be
// reloaded from any route.
func FrontendHandler() (http.Handler, error) {
	staticFS, err := shousaiweb.GetStaticFS()
	if err != nil {
		return nil, err
	}

	fileServer := http.FileServer(http.FS(staticFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// API and WebSocket paths belong to other handlers. Reaching
		// here means the route does not exist.
		if strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/ws") {
			http.NotFound(w, r)
			return
		}

		// Serve real files directly.
		if path != "/" {
			f, err := staticFS.Open(strings.TrimPrefix(path, "/"))
			if err == nil {
				f.Close()
				fileServer.ServeHTTP(w, r)
				return
			}
		}

		// Everything else gets the dashboard page.
		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	}), nil
}
