package joke

import (
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/cuemby/charmed-norris/pkg/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const (
	// DefaultPort is used when CHUCK_PORT is unset or not a number
	DefaultPort = "3333"

	PortEnv     = "CHUCK_PORT"
	CategoryEnv = "CHUCK_CATEGORY"
)

// ListenPort returns the port to listen on given the CHUCK_PORT value
func ListenPort(value string) string {
	if value == "" {
		return DefaultPort
	}
	if _, err := strconv.Atoi(value); err != nil {
		return DefaultPort
	}
	return value
}

// Settings is the workload's environment-derived configuration
type Settings struct {
	Port     string
	Category string
}

// SettingsFromEnv reads CHUCK_PORT and CHUCK_CATEGORY
func SettingsFromEnv() Settings {
	return Settings{
		Port:     ListenPort(os.Getenv(PortEnv)),
		Category: os.Getenv(CategoryEnv),
	}
}

// NewRouter builds the workload's HTTP handler. GET / answers with the text
// of a random joke in category; GET /healthz answers without calling out.
func NewRouter(fetcher Fetcher, category string) http.Handler {
	logger := log.WithComponent("workload")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		joke, err := fetcher.Random(req.Context(), category)
		if err != nil {
			logger.Error().Err(err).Str("category", category).Msg("Failed to fetch joke")
			http.Error(w, "could not fetch a joke", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, joke.Value)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok")
	})

	return r
}

// requestLogger logs each request through zerolog
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Str("request_id", middleware.GetReqID(r.Context())).
				Dur("duration", time.Since(start)).
				Msg("Request served")
		})
	}
}
