// Package httpapp exposes the query and control API over chi.
package httpapp

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/form/v4"
	"github.com/rs/zerolog"

	"github.com/himawari-lab/pixrank/internal/compress"
	"github.com/himawari-lab/pixrank/internal/config"
	"github.com/himawari-lab/pixrank/internal/status"
	"github.com/himawari-lab/pixrank/internal/store"
)

const imageHost = "i.pximg.net"

// Crawler is the crawl surface the handlers need. Start claims the
// single-flight state synchronously and runs in the background, so its
// result is an authoritative accept/reject.
type Crawler interface {
	Start(ctx context.Context, forceUpdate bool, dates []string) error
	AutoRun(ctx context.Context)
}

// Compressor is the compression surface the handlers need.
type Compressor interface {
	Start(opts compress.Options) error
	RequestStop()
}

type Handler struct {
	Config     *config.Manager
	Store      *store.DB
	Crawler    Crawler
	Compressor Compressor
	Status     *status.Tracker
	Logger     zerolog.Logger

	decoder *form.Decoder
}

func NewHandler(cfg *config.Manager, db *store.DB, cr Crawler, comp Compressor,
	tracker *status.Tracker, log zerolog.Logger) *Handler {
	return &Handler{
		Config:     cfg,
		Store:      db,
		Crawler:    cr,
		Compressor: comp,
		Status:     tracker,
		Logger:     log,
		decoder:    form.NewDecoder(),
	}
}

// writeJSON marshals v with a JSON content type.
func (h *Handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error().Err(err).Msg("failed to write response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code int, msg string) {
	h.writeJSON(w, code, map[string]string{"status": "error", "data": msg})
}

func (h *Handler) writeOK(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "data": data})
}

// checkAPIKey guards the privileged routes. The response never says whether
// the key was absent or wrong.
func (h *Handler) checkAPIKey(w http.ResponseWriter, r *http.Request) bool {
	key := r.URL.Query().Get("api_key")
	if key == "" || key != h.Config.Current().PrivilegeAPIKey {
		h.writeError(w, http.StatusForbidden, "invalid api key")
		return false
	}
	return true
}

// decodeQuery fills dst from the request's query string.
func (h *Handler) decodeQuery(r *http.Request, dst interface{}) error {
	return h.decoder.Decode(dst, r.URL.Query())
}

// proxied rewrites an upstream asset URL through the configured reverse
// proxy host.
func proxied(url, proxy string) string {
	if proxy == "" || proxy == imageHost {
		return url
	}
	return strings.Replace(url, imageHost, proxy, 1)
}
