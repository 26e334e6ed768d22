package store

import (
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/himawari-lab/pixrank/internal/domain"
	"github.com/himawari-lab/pixrank/internal/hash"
)

// Upsert persists one picture and its tags atomically. The picture id is
// derived from the natural key.
//
// With forceUpdate false this is insert-only: a primary-key conflict means
// the picture already exists and reports false without touching any field.
// With forceUpdate true all scalar columns are overwritten except
// local_filename_compressed, which is preserved from the existing row, and
// the picture's tag links are rebuilt from the incoming tag set.
//
// A constraint violation abandons this picture's write (logged in force
// mode); callers keep iterating over their batch.
func (db *DB) Upsert(naturalKey string, pic domain.Picture, forceUpdate bool) bool {
	pid := hash.ID(naturalKey)

	tx, err := db.Beginx()
	if err != nil {
		db.log.Error().Err(err).Uint32("picture_id", pid).Msg("failed to begin upsert transaction")
		return false
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if forceUpdate {
		err = upsertPicture(tx, pid, pic)
	} else {
		err = insertPicture(tx, pid, pic)
	}
	if err == nil {
		err = writeTags(tx, pid, pic.Tags, forceUpdate)
	}
	if err != nil {
		if isConstraintErr(err) {
			if forceUpdate {
				db.log.Warn().Err(err).Uint32("picture_id", pid).Msg("aborting database insertion")
			}
		} else {
			db.log.Error().Err(err).Uint32("picture_id", pid).Msg("aborting database insertion")
		}
		return false
	}

	if err := tx.Commit(); err != nil {
		db.log.Error().Err(err).Uint32("picture_id", pid).Msg("failed to commit upsert")
		return false
	}
	return true
}

func insertPicture(tx *sqlx.Tx, pid uint32, pic domain.Picture) error {
	_, err := tx.Exec(`INSERT INTO pictures
		(picture_id, id, author_id, author_name, title, page_no, page_count, r18, ai_type, url, local_filename)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pid, pic.IllustID, pic.AuthorID, pic.AuthorName, pic.Title, pic.PageNo,
		pic.PageCount, pic.R18, pic.AIType, pic.URL, pic.LocalFilename)
	return err
}

func upsertPicture(tx *sqlx.Tx, pid uint32, pic domain.Picture) error {
	// local_filename_compressed is deliberately absent from the update set:
	// a re-crawl must not clobber the compression state.
	_, err := tx.Exec(`INSERT INTO pictures
		(picture_id, id, author_id, author_name, title, page_no, page_count, r18, ai_type, url, local_filename)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(picture_id) DO UPDATE SET
			id = excluded.id,
			author_id = excluded.author_id,
			author_name = excluded.author_name,
			title = excluded.title,
			page_no = excluded.page_no,
			page_count = excluded.page_count,
			r18 = excluded.r18,
			ai_type = excluded.ai_type,
			url = excluded.url,
			local_filename = excluded.local_filename`,
		pid, pic.IllustID, pic.AuthorID, pic.AuthorName, pic.Title, pic.PageNo,
		pic.PageCount, pic.R18, pic.AIType, pic.URL, pic.LocalFilename)
	if err != nil {
		return err
	}
	// Rebuild the tag links from scratch so tags removed upstream between
	// crawls do not linger.
	_, err = tx.Exec(`DELETE FROM picture_tags WHERE picture_id = ?`, pid)
	return err
}

// Count returns the total number of picture rows.
func (db *DB) Count() (int, error) {
	var count int
	err := db.Get(&count, "SELECT COUNT(*) FROM pictures")
	return count, err
}

// GetByID returns one picture row, tags not populated.
func (db *DB) GetByID(pictureID uint32) (*domain.Picture, error) {
	var pic domain.Picture
	if err := db.Get(&pic, "SELECT * FROM pictures WHERE picture_id = ?", pictureID); err != nil {
		return nil, err
	}
	return &pic, nil
}

// TagsFor returns the tags linked to a picture.
func (db *DB) TagsFor(pictureID uint32) ([]domain.Tag, error) {
	var tags []domain.Tag
	err := db.Select(&tags, `SELECT tag_id, name, translated_name FROM tags
		WHERE tag_id IN (SELECT tag_id FROM picture_tags WHERE picture_id = ?)`, pictureID)
	return tags, err
}

// ListWithLocalFile returns pictures that have a downloaded asset. Unless
// includeCompressed is set, pictures that already have a compressed variant
// are skipped.
func (db *DB) ListWithLocalFile(includeCompressed bool) ([]domain.Picture, error) {
	query := "SELECT * FROM pictures WHERE local_filename != ''"
	if !includeCompressed {
		query += " AND local_filename_compressed = ''"
	}
	var pics []domain.Picture
	err := db.Select(&pics, query)
	return pics, err
}

// UpdateLocalPaths records the asset paths after a download or compression
// pass.
func (db *DB) UpdateLocalPaths(pictureID uint32, local, compressed string) error {
	_, err := db.Exec(`UPDATE pictures SET local_filename = ?, local_filename_compressed = ?
		WHERE picture_id = ?`, local, compressed, pictureID)
	return err
}

// SetLocalFilename records the downloaded asset path for a picture.
func (db *DB) SetLocalFilename(pictureID uint32, local string) error {
	_, err := db.Exec(`UPDATE pictures SET local_filename = ? WHERE picture_id = ?`, local, pictureID)
	return err
}

// RemoveLocalFile deletes the on-disk asset(s) of a picture and clears the
// corresponding path columns. With compressedOnly set, only the compressed
// variant is removed — unless both columns point at the same file, in which
// case the deletion is suppressed entirely: a "derived copy" removal must
// never destroy the sole copy.
func (db *DB) RemoveLocalFile(pictureID uint32, compressedOnly bool) error {
	pic, err := db.GetByID(pictureID)
	if err != nil {
		return fmt.Errorf("failed to load picture %d: %w", pictureID, err)
	}

	if compressedOnly && pic.LocalFilenameCompressed == pic.LocalFilename {
		db.log.Info().Uint32("picture_id", pictureID).
			Msg("compressed variant is the only copy, skipping removal")
		return nil
	}

	db.log.Info().Uint32("picture_id", pictureID).Str("file", pic.LocalFilename).
		Msg("removing file and related references")

	if !compressedOnly && pic.LocalFilename != "" {
		if err := os.Remove(pic.LocalFilename); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	if pic.LocalFilenameCompressed != "" && pic.LocalFilenameCompressed != pic.LocalFilename {
		if err := os.Remove(pic.LocalFilenameCompressed); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	query := "UPDATE pictures SET local_filename_compressed = ''"
	if !compressedOnly {
		query += ", local_filename = ''"
	}
	query += " WHERE picture_id = ?"
	_, err = db.Exec(query, pictureID)
	return err
}
