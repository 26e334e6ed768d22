// Package crawler orchestrates ranking fetches into the picture store: it
// pages through the configured ranking lists, filters items, derives stable
// picture ids, and in full store mode downloads the assets.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/himawari-lab/pixrank/internal/config"
	"github.com/himawari-lab/pixrank/internal/domain"
	"github.com/himawari-lab/pixrank/internal/downloader"
	"github.com/himawari-lab/pixrank/internal/filesystem"
	"github.com/himawari-lab/pixrank/internal/filter"
	"github.com/himawari-lab/pixrank/internal/hash"
	"github.com/himawari-lab/pixrank/internal/pixiv"
	"github.com/himawari-lab/pixrank/internal/status"
	"github.com/himawari-lab/pixrank/internal/store"
)

const imageHost = "i.pximg.net"

type Crawler struct {
	cfg    *config.Manager
	source pixiv.RankingSource
	store  *store.DB
	dl     downloader.Downloader
	status *status.Tracker
	log    zerolog.Logger

	// retryDelay is the wait between rate-limit retries, shortened in tests.
	retryDelay time.Duration

	mu      sync.Mutex
	lastRun time.Time
}

func New(cfg *config.Manager, source pixiv.RankingSource, db *store.DB,
	dl downloader.Downloader, tracker *status.Tracker, log zerolog.Logger) *Crawler {
	return &Crawler{
		cfg:        cfg,
		source:     source,
		store:      db,
		dl:         dl,
		status:     tracker,
		log:        log,
		retryDelay: 30 * time.Second,
	}
}

type counters struct {
	crawled    int
	added      int
	downloaded int
}

// Run crawls every configured ranking mode for each date. An empty dates
// slice means the current ranking. With forceUpdate set, existing rows are
// overwritten and their tag links rebuilt.
//
// Only one run may be active; concurrent attempts get *status.ErrBusy. A
// rate-limit response is retried in place up to the configured retry budget,
// after which the whole run aborts.
func (c *Crawler) Run(ctx context.Context, forceUpdate bool, dates []string) error {
	if err := c.status.Begin("crawling [0% completed]"); err != nil {
		return err
	}
	return c.run(ctx, forceUpdate, dates)
}

// Start is Run's asynchronous form. The single-flight claim happens before
// it returns, so a nil result means the crawl is underway.
func (c *Crawler) Start(ctx context.Context, forceUpdate bool, dates []string) error {
	if err := c.status.Begin("crawling [0% completed]"); err != nil {
		return err
	}
	go func() {
		if err := c.run(ctx, forceUpdate, dates); err != nil {
			c.log.Error().Err(err).Msg("crawl run failed")
		}
	}()
	return nil
}

// run assumes the status claim is already held and releases it on return.
func (c *Crawler) run(ctx context.Context, forceUpdate bool, dates []string) error {
	defer c.status.Done()

	c.mu.Lock()
	c.lastRun = time.Now()
	c.mu.Unlock()

	cfg := c.cfg.Current()
	if len(dates) == 0 {
		dates = []string{""}
	}
	if cfg.StoreMode == domain.StoreModeFull {
		if err := filesystem.EnsureDir(cfg.DownloadFolder); err != nil {
			return fmt.Errorf("failed to create download folder: %w", err)
		}
	}
	policy := filter.Policy{
		ExcludedTags:       cfg.ExcludedTags,
		AllowMultiplePages: cfg.AllowMultiplePages,
		AllPages:           cfg.GetAllMultiplePages,
		Quality:            cfg.DownloadQuality,
	}

	total := len(dates) * len(cfg.RankingModes)
	var counts counters
	// The counts go out whether the run finishes or aborts.
	defer func() {
		c.log.Info().Int("crawled", counts.crawled).Int("added", counts.added).
			Int("downloaded", counts.downloaded).Msg("crawl run ended")
	}()

	done := 0
	for _, date := range dates {
		for _, mode := range cfg.RankingModes {
			c.status.Set(fmt.Sprintf("crawling [%d%% completed]", done*100/total))
			if err := c.crawlRanking(ctx, cfg, policy, mode, date, forceUpdate, &counts); err != nil {
				c.log.Error().Err(err).Str("mode", mode).Str("date", date).Msg("crawl run aborted")
				return err
			}
			done++
		}
	}
	return nil
}

// AutoRun starts a non-manual crawl when the configured update interval has
// elapsed since the last run. It is safe to call on every API request; a busy
// crawler or a not-yet-due interval makes it a no-op.
func (c *Crawler) AutoRun(ctx context.Context) {
	cfg := c.cfg.Current()
	if cfg.UpdateInterval <= 0 {
		return
	}

	c.mu.Lock()
	due := time.Since(c.lastRun) >= cfg.UpdateInterval
	c.mu.Unlock()
	if !due {
		return
	}

	if err := c.Run(ctx, false, nil); err != nil {
		var busy *status.ErrBusy
		if errors.As(err, &busy) {
			c.log.Debug().Str("state", busy.Current).Msg("skipping automatic crawl")
			return
		}
		c.log.Error().Err(err).Msg("automatic crawl failed")
	}
}

func (c *Crawler) crawlRanking(ctx context.Context, cfg *config.Config, policy filter.Policy,
	mode, date string, forceUpdate bool, counts *counters) error {
	c.log.Info().Str("mode", mode).Str("date", date).Msg("crawling ranking")

	query := pixiv.Query{Mode: mode, Date: date}
	for {
		page, err := c.fetchPage(ctx, cfg, query)
		if err != nil {
			return err
		}

		for _, item := range page.Items {
			counts.crawled++
			if !policy.Admit(item) {
				continue
			}
			for i, url := range policy.PageURLs(item) {
				if url == "" {
					continue
				}
				c.storePicture(ctx, cfg, item, i, url, forceUpdate, counts)
			}
		}

		if page.Next == nil || !cfg.GetAllRankingPages {
			return nil
		}
		query = *page.Next
	}
}

// fetchPage retries rate-limited requests in place. Exhausting the retry
// budget fails the fetch, and with it the whole run.
func (c *Crawler) fetchPage(ctx context.Context, cfg *config.Config, q pixiv.Query) (*pixiv.Page, error) {
	for attempt := 0; ; attempt++ {
		page, err := c.source.Ranking(ctx, q)
		if err == nil {
			return page, nil
		}
		if !errors.Is(err, pixiv.ErrRateLimited) {
			return nil, err
		}
		if attempt >= cfg.MaxRateLimitRetries {
			return nil, fmt.Errorf("giving up after %d rate-limit retries: %w", attempt, err)
		}
		c.log.Warn().Str("mode", q.Mode).Int("attempt", attempt+1).
			Dur("delay", c.retryDelay).Msg("rate limited, backing off")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *Crawler) storePicture(ctx context.Context, cfg *config.Config,
	item domain.RankingItem, pageNo int, url string, forceUpdate bool, counts *counters) {
	key := hash.PictureKey(item.ID, pageNo)
	pic := domain.Picture{
		IllustID:   item.ID,
		AuthorID:   item.AuthorID,
		AuthorName: item.AuthorName,
		Title:      item.Title,
		PageNo:     pageNo,
		PageCount:  item.PageCount,
		AIType:     item.AIType,
		URL:        url,
	}
	if item.XRestrict > 0 {
		pic.R18 = 1
	}
	for _, tag := range item.Tags {
		pic.Tags = append(pic.Tags, domain.Tag{
			TagID:          hash.ID(tag.Name),
			Name:           tag.Name,
			TranslatedName: tag.TranslatedName,
		})
	}

	if !c.store.Upsert(key, pic, forceUpdate) {
		return
	}
	counts.added++

	if cfg.StoreMode != domain.StoreModeFull {
		return
	}
	dest := filepath.Join(cfg.DownloadFolder, localFilename(item, pageNo, url, cfg.UnicodeFilenames))
	if err := c.dl.Download(ctx, downloadURL(url, cfg.DownloadReverseProxy), dest); err != nil {
		c.log.Warn().Err(err).Int64("illust_id", item.ID).Int("page", pageNo).
			Msg("failed to download asset")
		return
	}
	if err := c.store.SetLocalFilename(hash.ID(key), dest); err != nil {
		c.log.Error().Err(err).Str("file", dest).Msg("failed to record downloaded asset")
		return
	}
	counts.downloaded++
}

// localFilename slugifies `{id}_{author}_{title}_p{page}` and appends the
// source extension.
func localFilename(item domain.RankingItem, pageNo int, url string, unicodeNames bool) string {
	raw := fmt.Sprintf("%d_%s_%s_p%d", item.ID, item.AuthorName, item.Title, pageNo)
	name := filesystem.Slugify(raw, unicodeNames)
	ext := filesystem.Extension(url)
	if ext == "" {
		ext = ".jpg"
	}
	return name + ext
}

// downloadURL routes an asset URL through the configured reverse proxy.
func downloadURL(url, proxy string) string {
	if proxy == "" || proxy == imageHost {
		return url
	}
	return strings.Replace(url, imageHost, proxy, 1)
}
