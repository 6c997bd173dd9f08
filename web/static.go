// Package web serves the few static pages that sit beside the JSON API.
package web

import (
	_ "embed"
	"net/http"
)

//go:embed index.html
var indexHTML []byte

//go:embed robots.txt
var robotsTxt []byte

// IndexHandler serves the landing page at the web root. It points humans
// and agents at the OpenAPI document and the health endpoints.
func IndexHandler() http.Handler {
	return staticHandler("text/html; charset=utf-8", "public, max-age=3600, must-revalidate", indexHTML)
}

// RobotsTxtHandler keeps crawlers out of the API.
func RobotsTxtHandler() http.Handler {
	return staticHandler("text/plain; charset=utf-8", "public, max-age=86400", robotsTxt)
}

func staticHandler(contentType, cacheControl string, body []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", cacheControl)
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(body)
	})
}
