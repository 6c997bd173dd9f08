package api

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"net/http"
	"sync"

	"sigs.k8s.io/yaml"
)

//go:embed openapi.yaml
var openAPIYAML []byte

type openAPIDocument struct {
	json []byte
	etag string
	err  error
}

var loadOpenAPI = sync.OnceValue(func() openAPIDocument {
	body, err := yaml.YAMLToJSON(openAPIYAML)
	if err != nil {
		return openAPIDocument{err: err}
	}
	sum := sha256.Sum256(openAPIYAML)
	return openAPIDocument{json: body, etag: `"` + hex.EncodeToString(sum[:8]) + `"`}
})

// OpenAPIHandler serves the embedded API description, as JSON by default or
// as the source YAML with ?format=yaml. Both share an ETag derived from the
// YAML so clients can revalidate cheaply.
func OpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		doc := loadOpenAPI()
		if doc.err != nil {
			http.Error(w, "openapi unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("ETag", doc.etag)
		w.Header().Set("Cache-Control", "public, max-age=300")
		if r.Header.Get("If-None-Match") == doc.etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		body, contentType := doc.json, "application/json"
		if r.URL.Query().Get("format") == "yaml" {
			body, contentType = openAPIYAML, "application/yaml"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(body)
		}
	}
}
