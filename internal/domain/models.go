package domain

// StoreMode controls whether crawled assets are kept as URLs only or
// downloaded to local storage.
type StoreMode string

const (
	StoreModeLight StoreMode = "light"
	StoreModeFull  StoreMode = "full"
)

// Quality is the requested asset quality tier. Resolution falls back to the
// next tier down when the upstream item does not carry the requested URL.
type Quality string

const (
	QualityOriginal Quality = "original"
	QualityLarge    Quality = "large"
	QualityMedium   Quality = "medium"
)

// Picture is one page of one illustration. PictureID is a pure function of
// (IllustID, PageNo); re-deriving it always reproduces the same value.
type Picture struct {
	PictureID               uint32 `json:"-" db:"picture_id"`
	IllustID                int64  `json:"id" db:"id"`
	AuthorID                int64  `json:"author_id" db:"author_id"`
	AuthorName              string `json:"author_name" db:"author_name"`
	Title                   string `json:"title" db:"title"`
	PageNo                  int    `json:"page_no" db:"page_no"`
	PageCount               int    `json:"page_count" db:"page_count"`
	R18                     int    `json:"r18" db:"r18"`
	AIType                  int    `json:"ai_type" db:"ai_type"`
	URL                     string `json:"url" db:"url"`
	LocalFilename           string `json:"-" db:"local_filename"`
	LocalFilenameCompressed string `json:"-" db:"local_filename_compressed"`

	// Tags is populated on read by a separate lookup, not scanned from the
	// pictures table.
	Tags []Tag `json:"tags,omitempty" db:"-"`
}

// Tag is a named classification, many-to-many with pictures. TagID is the
// stable hash of Name.
type Tag struct {
	TagID          uint32  `json:"-" db:"tag_id"`
	Name           string  `json:"name" db:"name"`
	TranslatedName *string `json:"translated_name" db:"translated_name"`
}

// RankingTag is a tag as reported by the upstream ranking API.
type RankingTag struct {
	Name           string  `json:"name"`
	TranslatedName *string `json:"translated_name"`
}

// PageURLs carries the asset URLs of a single page at each quality tier.
// Absent tiers are empty strings.
type PageURLs struct {
	Original string `json:"original"`
	Large    string `json:"large"`
	Medium   string `json:"medium"`
}

// URL returns the asset URL at the requested tier, falling back
// original → large → medium.
func (u PageURLs) URL(q Quality) string {
	switch q {
	case QualityOriginal:
		if u.Original != "" {
			return u.Original
		}
		fallthrough
	case QualityLarge:
		if u.Large != "" {
			return u.Large
		}
		fallthrough
	default:
		return u.Medium
	}
}

// RankingItem is one illustration as returned by the upstream ranking API.
type RankingItem struct {
	ID         int64        `json:"id"`
	Title      string       `json:"title"`
	Type       string       `json:"type"`
	AuthorID   int64        `json:"author_id"`
	AuthorName string       `json:"author_name"`
	PageCount  int          `json:"page_count"`
	XRestrict  int          `json:"x_restrict"`
	AIType     int          `json:"illust_ai_type"`
	Tags       []RankingTag `json:"tags"`
	SinglePage PageURLs     `json:"single_page"`
	MetaPages  []PageURLs   `json:"meta_pages"`
}
