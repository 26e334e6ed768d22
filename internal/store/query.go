package store

import (
	"strings"

	"github.com/himawari-lab/pixrank/internal/domain"
)

// Filters are the predicates accepted by QueryRandom. Zero values mean
// "no restriction"; an entirely empty filter samples over all pictures.
type Filters struct {
	// R18 selects non-R18 (0), R18 only (1), or both (2 or anything else).
	R18 int
	// Limit is the sample size, clamped to [1, Limits.MaxImages].
	Limit int
	// IllustID restricts to one illustration id.
	IllustID *int64
	// AuthorIDs restricts to a set of author ids, capped at
	// Limits.MaxAuthors.
	AuthorIDs []int64
	// AuthorNames restricts to author-name prefixes, OR-combined, capped
	// at Limits.MaxAuthors.
	AuthorNames []string
	// Title restricts to titles containing this substring.
	Title string
	// AIType restricts to one AI classification value.
	AIType *int
	// Tags restricts to pictures whose tags full-text match any of these
	// terms, capped at Limits.MaxTags.
	Tags []string
	// LocalFileOnly restricts to pictures with a downloaded asset.
	LocalFileOnly bool
}

// QueryRandom returns an unordered random sample of pictures matching the
// filters. All predicates bind parameters; no user input reaches the query
// text.
func (db *DB) QueryRandom(f Filters) ([]domain.Picture, error) {
	var conds []string
	var args []interface{}

	if f.R18 == 0 || f.R18 == 1 {
		conds = append(conds, "r18 = ?")
		args = append(args, f.R18)
	}
	if f.IllustID != nil {
		conds = append(conds, "id = ?")
		args = append(args, *f.IllustID)
	}
	if len(f.AuthorIDs) > 0 {
		ids := f.AuthorIDs
		if len(ids) > db.Limits.MaxAuthors {
			ids = ids[:db.Limits.MaxAuthors]
		}
		conds = append(conds, "author_id IN ("+placeholders(len(ids))+")")
		for _, id := range ids {
			args = append(args, id)
		}
	}
	if len(f.AuthorNames) > 0 {
		names := f.AuthorNames
		if len(names) > db.Limits.MaxAuthors {
			names = names[:db.Limits.MaxAuthors]
		}
		likes := make([]string, 0, len(names))
		for _, name := range names {
			likes = append(likes, "author_name LIKE ?")
			args = append(args, name+"%")
		}
		conds = append(conds, "("+strings.Join(likes, " OR ")+")")
	}
	if f.Title != "" {
		conds = append(conds, "title LIKE ?")
		args = append(args, "%"+f.Title+"%")
	}
	if f.AIType != nil {
		conds = append(conds, "ai_type = ?")
		args = append(args, *f.AIType)
	}
	if len(f.Tags) > 0 {
		tags := f.Tags
		if len(tags) > db.Limits.MaxTags {
			tags = tags[:db.Limits.MaxTags]
		}
		conds = append(conds, `picture_id IN (SELECT picture_id FROM picture_tags
			WHERE tag_id IN (SELECT rowid FROM tags_fts WHERE tags_fts MATCH ?))`)
		args = append(args, ftsMatch(tags))
	}
	if f.LocalFileOnly {
		conds = append(conds, "local_filename != ''")
	}

	limit := f.Limit
	if limit < 1 {
		limit = 1
	}
	if limit > db.Limits.MaxImages {
		limit = db.Limits.MaxImages
	}

	query := "SELECT * FROM pictures WHERE picture_id IN (SELECT picture_id FROM pictures "
	if len(conds) > 0 {
		query += "WHERE (" + strings.Join(conds, " AND ") + ") "
	}
	query += "ORDER BY RANDOM() LIMIT ?)"
	args = append(args, limit)

	var pics []domain.Picture
	err := db.Select(&pics, query, args...)
	return pics, err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
