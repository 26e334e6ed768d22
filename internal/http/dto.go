package httpapp

import (
	"github.com/himawari-lab/pixrank/internal/store"
)

// ImageQuery is the query-string DTO shared by the random-picture endpoints.
// Pointer fields distinguish "absent" from zero values.
type ImageQuery struct {
	R18         *int     `form:"r18"`
	Num         *int     `form:"num"`
	ID          *int64   `form:"id"`
	AuthorIDs   []int64  `form:"author_ids"`
	AuthorNames []string `form:"author_names"`
	Title       *string  `form:"title"`
	AIType      *int     `form:"ai_type"`
	Tags        []string `form:"tags"`
}

// toFilters maps the DTO onto store filters. List caps are applied by the
// store itself.
func (q *ImageQuery) toFilters() store.Filters {
	f := store.Filters{
		R18:         0,
		Limit:       1,
		IllustID:    q.ID,
		AuthorIDs:   q.AuthorIDs,
		AuthorNames: q.AuthorNames,
		AIType:      q.AIType,
		Tags:        q.Tags,
	}
	if q.R18 != nil {
		f.R18 = *q.R18
	}
	if q.Num != nil {
		f.Limit = *q.Num
	}
	if q.Title != nil {
		f.Title = *q.Title
	}
	return f
}
