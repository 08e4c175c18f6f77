package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tarungka/couchstream/pipeline"
)

func StatusRouter(status StatusProvider) chi.Router {
	router := chi.NewRouter()

	router.Get("/", statusHandler(status))

	return router
}

func statusHandler(status StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := status.Stats()
		if stats.State == pipeline.StateFatal {
			SendResponseWithHeader(w, false, stats, "replication halted", http.StatusServiceUnavailable, map[string]string{
				"Cache-Control": "no-store",
			})
			return
		}
		SendResponseWithHeader(w, true, stats, "", 0, map[string]string{
			"Cache-Control": "no-store",
		})
	}
}
