package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// SchemaVersionFunc reports the applied migration version and whether the
// last migration was left dirty.
type SchemaVersionFunc func(ctx context.Context) (version uint, dirty bool, err error)

type versionResponse struct {
	Version       string `json:"version"`
	GitCommit     string `json:"git_commit"`
	BuildDate     string `json:"build_date"`
	GoVersion     string `json:"go_version"`
	SchemaVersion *uint  `json:"schema_version,omitempty"`
	SchemaDirty   bool   `json:"schema_dirty,omitempty"`
}

// VersionHandler serves build metadata and, when schema is set, the current
// migration version. A failed schema lookup is logged and omitted rather
// than failing the request.
func VersionHandler(build BuildInfo, schema SchemaVersionFunc) http.Handler {
	if build.Version == "" {
		build.Version = "dev"
	}
	if build.GitCommit == "" {
		build.GitCommit = "unknown"
	}
	if build.BuildDate == "" {
		build.BuildDate = "unknown"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		response := versionResponse{
			Version:   build.Version,
			GitCommit: build.GitCommit,
			BuildDate: build.BuildDate,
			GoVersion: runtime.Version(),
		}

		if schema != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			version, dirty, err := schema(ctx)
			cancel()
			if err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).Msg("schema version lookup failed")
			} else {
				response.SchemaVersion = &version
				response.SchemaDirty = dirty
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	})
}
