// Package compress re-encodes downloaded assets to space-saving JPEGs.
package compress

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/himawari-lab/pixrank/internal/domain"
	"github.com/himawari-lab/pixrank/internal/status"
	"github.com/himawari-lab/pixrank/internal/store"
)

// Options controls one compression pass.
type Options struct {
	// Quality is the JPEG quality, 1-100.
	Quality int
	// Force re-compresses pictures that already have a compressed variant.
	Force bool
	// DeleteOriginal removes the source file after compression and points
	// the picture's local path at the compressed copy.
	DeleteOriginal bool
}

// Worker walks the pictures with local assets and produces compressed
// variants. A run holds the shared status tracker, so crawling and
// compressing never overlap.
type Worker struct {
	store  *store.DB
	status *status.Tracker
	codec  Codec
	log    zerolog.Logger
	stop   atomic.Bool
}

func NewWorker(db *store.DB, tracker *status.Tracker, log zerolog.Logger) *Worker {
	return &Worker{
		store:  db,
		status: tracker,
		codec:  JPEGCodec,
		log:    log,
	}
}

// RequestStop asks an active run to finish after the current picture.
// It has no effect when no run is active; the flag is cleared on run start.
func (w *Worker) RequestStop() {
	w.stop.Store(true)
}

// Run compresses all eligible pictures. It returns *status.ErrBusy when a
// crawl or another compression run is active.
func (w *Worker) Run(opts Options) error {
	if err := w.status.Begin("compressing images [0% completed]"); err != nil {
		return err
	}
	return w.run(opts)
}

// Start is Run's asynchronous form. The single-flight claim happens before
// it returns, so a nil result means the pass is underway.
func (w *Worker) Start(opts Options) error {
	if err := w.status.Begin("compressing images [0% completed]"); err != nil {
		return err
	}
	go func() {
		if err := w.run(opts); err != nil {
			w.log.Error().Err(err).Msg("compression run failed")
		}
	}()
	return nil
}

func (w *Worker) run(opts Options) error {
	defer w.status.Done()
	w.stop.Store(false)

	pics, err := w.store.ListWithLocalFile(opts.Force)
	if err != nil {
		return fmt.Errorf("failed to list pictures for compression: %w", err)
	}

	w.log.Info().Int("count", len(pics)).Msg("starting compression run")
	for i, pic := range pics {
		if w.stop.Load() {
			w.stop.Store(false)
			w.log.Info().Int("done", i).Int("total", len(pics)).Msg("compression stopped on request")
			return nil
		}
		w.status.Set(fmt.Sprintf("compressing images [%d%% completed]", i*100/len(pics)))

		if err := w.compressOne(pic, opts); err != nil {
			w.log.Warn().Err(err).Uint32("picture_id", pic.PictureID).
				Str("file", pic.LocalFilename).Msg("failed to compress picture")
		}
	}
	w.log.Info().Int("count", len(pics)).Msg("compression run finished")
	return nil
}

func (w *Worker) compressOne(pic domain.Picture, opts Options) error {
	src := pic.LocalFilename
	if _, err := os.Stat(src); err != nil {
		// The asset vanished from disk; drop the stale references.
		return w.store.RemoveLocalFile(pic.PictureID, false)
	}

	dst := CompressedPath(src)
	if err := w.codec(src, dst, opts.Quality); err != nil {
		if errors.Is(err, ErrInvalidImage) {
			// Corrupt download, remove it rather than retrying forever.
			if rmErr := w.store.RemoveLocalFile(pic.PictureID, false); rmErr != nil {
				return rmErr
			}
		}
		return err
	}

	local := src
	if opts.DeleteOriginal && src != dst {
		if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
			return err
		}
		local = dst
	}
	return w.store.UpdateLocalPaths(pic.PictureID, local, dst)
}

// CompressedPath maps an asset path to its compressed sibling.
func CompressedPath(src string) string {
	ext := filepath.Ext(src)
	return strings.TrimSuffix(src, ext) + "_compressed.jpg"
}
