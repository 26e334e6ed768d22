package httpapp

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/himawari-lab/pixrank/internal/compress"
	"github.com/himawari-lab/pixrank/internal/domain"
)

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Info)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", h.RandomJSON)
		r.Get("/img", h.RandomImage)
		r.Get("/html", h.RandomHTML)
		r.Get("/redirect", h.RandomRedirect)
		r.Get("/crawl", h.Crawl)
		r.Get("/compress", h.Compress)
		r.Get("/reload", h.Reload)
	})
}

func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"service": "pixrank",
		"status":  h.Status.Current(),
	})
}

// queryPictures decodes the DTO and draws a random sample. Query traffic also
// nudges the background auto-crawl.
func (h *Handler) queryPictures(w http.ResponseWriter, r *http.Request, localOnly bool) ([]domain.Picture, bool) {
	go h.Crawler.AutoRun(context.Background())

	var q ImageQuery
	if err := h.decodeQuery(r, &q); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid query parameters")
		return nil, false
	}
	filters := q.toFilters()
	filters.LocalFileOnly = localOnly

	pics, err := h.Store.QueryRandom(filters)
	if err != nil {
		h.Logger.Error().Err(err).Msg("random query failed")
		h.writeError(w, http.StatusInternalServerError, "query failed")
		return nil, false
	}
	if len(pics) == 0 {
		h.writeError(w, http.StatusOK, "no result")
		return nil, false
	}
	return pics, true
}

func (h *Handler) RandomJSON(w http.ResponseWriter, r *http.Request) {
	pics, ok := h.queryPictures(w, r, false)
	if !ok {
		return
	}

	proxy := h.Config.Current().ReverseProxy
	for i := range pics {
		tags, err := h.Store.TagsFor(pics[i].PictureID)
		if err != nil {
			h.Logger.Warn().Err(err).Uint32("picture_id", pics[i].PictureID).Msg("failed to load tags")
		}
		pics[i].Tags = tags
		pics[i].URL = proxied(pics[i].URL, proxy)
	}
	h.writeOK(w, pics)
}

// RandomImage serves one random local asset, preferring the compressed
// variant. A picture whose file is missing gets its stale references cleaned
// up and another draw is made, at most as many times as there are rows.
func (h *Handler) RandomImage(w http.ResponseWriter, r *http.Request) {
	count, err := h.Store.Count()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	for attempt := 0; attempt <= count; attempt++ {
		pics, ok := h.queryPictures(w, r, true)
		if !ok {
			return
		}
		pic := pics[0]

		path := pic.LocalFilenameCompressed
		servingCompressed := true
		if path == "" {
			path = pic.LocalFilename
			servingCompressed = false
		}

		if _, err := os.Stat(path); err != nil {
			// When both columns point at the same missing file, a
			// compressed-only removal would be suppressed as a sole-copy
			// delete and the dead row would keep being drawn.
			compressedOnly := servingCompressed &&
				pic.LocalFilenameCompressed != pic.LocalFilename
			h.Logger.Warn().Str("file", path).Uint32("picture_id", pic.PictureID).
				Msg("local file missing, dropping stale reference")
			if err := h.Store.RemoveLocalFile(pic.PictureID, compressedOnly); err != nil {
				h.Logger.Error().Err(err).Uint32("picture_id", pic.PictureID).
					Msg("failed to drop stale reference")
			}
			continue
		}

		http.ServeFile(w, r, path)
		return
	}
	h.writeError(w, http.StatusOK, "no result")
}

var htmlPage = template.Must(template.New("image").Parse(
	`<!DOCTYPE html><html><head><title>pixrank</title></head>` +
		`<body><img src="{{.}}" alt="random picture"/></body></html>`))

func (h *Handler) RandomHTML(w http.ResponseWriter, r *http.Request) {
	pics, ok := h.queryPictures(w, r, false)
	if !ok {
		return
	}
	url := proxied(pics[0].URL, h.Config.Current().ReverseProxy)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := htmlPage.Execute(w, url); err != nil {
		h.Logger.Error().Err(err).Msg("failed to render html page")
	}
}

func (h *Handler) RandomRedirect(w http.ResponseWriter, r *http.Request) {
	pics, ok := h.queryPictures(w, r, false)
	if !ok {
		return
	}
	url := proxied(pics[0].URL, h.Config.Current().ReverseProxy)
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *Handler) Crawl(w http.ResponseWriter, r *http.Request) {
	if !h.checkAPIKey(w, r) {
		return
	}

	query := r.URL.Query()
	dates, err := expandDates(query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	forceUpdate := query.Get("force_update") == "true"

	if err := h.Crawler.Start(context.Background(), forceUpdate, dates); err != nil {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	h.writeOK(w, "crawl started")
}

func (h *Handler) Compress(w http.ResponseWriter, r *http.Request) {
	if !h.checkAPIKey(w, r) {
		return
	}

	query := r.URL.Query()
	if query.Get("stop_task") == "true" {
		h.Compressor.RequestStop()
		h.writeOK(w, "stop requested")
		return
	}

	quality := 75
	if raw := query.Get("quality"); raw != "" {
		q, err := strconv.Atoi(raw)
		if err != nil || q < 1 || q > 100 {
			h.writeError(w, http.StatusBadRequest, "quality must be an integer between 1 and 100")
			return
		}
		quality = q
	}
	opts := compress.Options{
		Quality:        quality,
		Force:          query.Get("force") == "true",
		DeleteOriginal: query.Get("delete_original") == "true",
	}

	if err := h.Compressor.Start(opts); err != nil {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	h.writeOK(w, "compression started")
}

func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if !h.checkAPIKey(w, r) {
		return
	}
	if err := h.Status.Begin("reloading config"); err != nil {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	defer h.Status.Done()

	if err := h.Config.Reload(); err != nil {
		h.Logger.Error().Err(err).Msg("config reload failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.Logger.Info().Msg("configuration reloaded")
	h.writeOK(w, "config reloaded")
}

// expandDates turns an inclusive YYYY-MM-DD range into the list of days.
// Both empty means "current ranking" (nil). An empty end means "through
// today".
func expandDates(start, end string) ([]string, error) {
	const layout = "2006-01-02"

	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" {
		return nil, errors.New("end_date given without start_date")
	}
	if end == "" {
		end = time.Now().Format(layout)
	}
	from, err := time.Parse(layout, start)
	if err != nil {
		return nil, fmt.Errorf("invalid start_date: %s", start)
	}
	to, err := time.Parse(layout, end)
	if err != nil {
		return nil, fmt.Errorf("invalid end_date: %s", end)
	}
	if to.Before(from) {
		return nil, errors.New("end_date is before start_date")
	}

	var dates []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(layout))
	}
	return dates, nil
}
