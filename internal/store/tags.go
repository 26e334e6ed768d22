package store

import (
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/himawari-lab/pixrank/internal/domain"
	"github.com/himawari-lab/pixrank/internal/hash"
)

// UpsertTag inserts or updates a tag and returns its derived id. The FTS
// shadow index follows through the schema triggers in the same transaction.
func (db *DB) UpsertTag(name string, translatedName *string) (uint32, error) {
	tx, err := db.Beginx()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	tagID, err := upsertTag(tx, domain.RankingTag{Name: name, TranslatedName: translatedName})
	if err != nil {
		return 0, err
	}
	return tagID, tx.Commit()
}

// LinkTag associates a picture with a tag. Plain mode ignores an existing
// link; force mode replaces it.
func (db *DB) LinkTag(pictureID, tagID uint32, force bool) error {
	verb := "INSERT OR IGNORE"
	if force {
		verb = "INSERT OR REPLACE"
	}
	_, err := db.Exec(verb+" INTO picture_tags (picture_id, tag_id) VALUES (?, ?)", pictureID, tagID)
	return err
}

// SearchTags runs a full-text match over tag names and translated names.
// Multiple terms are OR-combined.
func (db *DB) SearchTags(terms []string) ([]domain.Tag, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	var tags []domain.Tag
	err := db.Select(&tags, `SELECT tag_id, name, translated_name FROM tags
		WHERE tag_id IN (SELECT rowid FROM tags_fts WHERE tags_fts MATCH ?)`, ftsMatch(terms))
	return tags, err
}

// writeTags persists a picture's tag set inside the surrounding upsert
// transaction. Plain mode swallows pre-existing tags (insert-or-ignore);
// force mode overwrites tag rows and links.
func writeTags(tx *sqlx.Tx, pictureID uint32, tags []domain.Tag, force bool) error {
	for _, tag := range tags {
		item := domain.RankingTag{Name: tag.Name, TranslatedName: tag.TranslatedName}
		if force {
			tagID, err := upsertTag(tx, item)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(`INSERT OR REPLACE INTO picture_tags (picture_id, tag_id) VALUES (?, ?)`,
				pictureID, tagID); err != nil {
				return err
			}
			continue
		}

		tagID := hash.ID(tag.Name)
		if _, err := tx.Exec(`INSERT OR IGNORE INTO tags (tag_id, name, translated_name) VALUES (?, ?, ?)`,
			tagID, tag.Name, tag.TranslatedName); err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO picture_tags (picture_id, tag_id)
			VALUES (?, (SELECT tag_id FROM tags WHERE name = ?))`, pictureID, tag.Name); err != nil {
			return err
		}
	}
	return nil
}

func upsertTag(tx *sqlx.Tx, tag domain.RankingTag) (uint32, error) {
	tagID := hash.ID(tag.Name)
	// ON CONFLICT DO UPDATE rather than INSERT OR REPLACE: a REPLACE would
	// delete the existing row and cascade away every picture link for this
	// tag.
	_, err := tx.Exec(`INSERT INTO tags (tag_id, name, translated_name) VALUES (?, ?, ?)
		ON CONFLICT(tag_id) DO UPDATE SET name = excluded.name, translated_name = excluded.translated_name`,
		tagID, tag.Name, tag.TranslatedName)
	if err != nil {
		return 0, err
	}
	return tagID, nil
}

// ftsMatch builds an OR-combined FTS5 match expression with each term quoted,
// so user input cannot inject query syntax.
func ftsMatch(terms []string) string {
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}
