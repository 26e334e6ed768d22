package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"

	"github.com/himawari-lab/pixrank/internal/compress"
	"github.com/himawari-lab/pixrank/internal/config"
	"github.com/himawari-lab/pixrank/internal/crawler"
	"github.com/himawari-lab/pixrank/internal/downloader"
	httpapp "github.com/himawari-lab/pixrank/internal/http"
	"github.com/himawari-lab/pixrank/internal/logger"
	"github.com/himawari-lab/pixrank/internal/pixiv"
	"github.com/himawari-lab/pixrank/internal/status"
	"github.com/himawari-lab/pixrank/internal/store"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the configuration file")
	flag.Parse()

	manager, err := config.NewManager(*configPath)
	if err != nil {
		// The logger is configured from the file we just failed on.
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}
	cfg := manager.Current()

	log := logger.New(cfg.LogLevel)
	log.Info().Str("config", *configPath).Msg("starting pixrank")

	db, err := store.NewSQLiteDB(cfg.DBPath, logger.WithComponent(log, "store"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init database")
	}
	defer db.Close()
	db.Limits = store.Limits{
		MaxImages:  cfg.ImageNumLimit,
		MaxAuthors: cfg.AuthorNumLimit,
		MaxTags:    cfg.TagNumLimit,
	}

	tracker := status.NewTracker()
	source := pixiv.NewAppClient(
		pixiv.StaticTokenProvider{Token: cfg.AccessToken},
		logger.WithComponent(log, "pixiv"),
	)
	dl := downloader.NewHTTPDownloader(logger.WithComponent(log, "downloader"))
	cr := crawler.New(manager, source, db, dl, tracker, logger.WithComponent(log, "crawler"))
	worker := compress.NewWorker(db, tracker, logger.WithComponent(log, "compress"))

	// Periodic auto-crawl; AutoRun itself honors update_interval, so a
	// minutely tick just keeps the crawler close to its schedule.
	var scheduler *cron.Cron
	if cfg.UpdateInterval > 0 {
		scheduler = cron.New()
		if _, err := scheduler.AddFunc("@every 1m", func() {
			cr.AutoRun(context.Background())
		}); err != nil {
			log.Fatal().Err(err).Msg("failed to schedule auto-crawl")
		}
		scheduler.Start()
		defer scheduler.Stop()
		log.Info().Dur("interval", cfg.UpdateInterval).Msg("automatic crawling enabled")
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := httpapp.NewHandler(manager, db, cr, worker, tracker, logger.WithComponent(log, "http"))
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	worker.RequestStop()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exiting")
}
