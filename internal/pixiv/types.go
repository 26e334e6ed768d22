package pixiv

import "github.com/himawari-lab/pixrank/internal/domain"

// Wire shapes of the app-API ranking response.

type rankingResponse struct {
	Illusts []wireIllust `json:"illusts"`
	NextURL string       `json:"next_url"`
	Error   *wireError   `json:"error,omitempty"`
}

type wireError struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

type wireIllust struct {
	ID             int64          `json:"id"`
	Title          string         `json:"title"`
	Type           string         `json:"type"`
	User           wireUser       `json:"user"`
	PageCount      int            `json:"page_count"`
	XRestrict      int            `json:"x_restrict"`
	IllustAIType   int            `json:"illust_ai_type"`
	Tags           []wireTag      `json:"tags"`
	ImageURLs      wireImageURLs  `json:"image_urls"`
	MetaSinglePage wireSinglePage `json:"meta_single_page"`
	MetaPages      []wireMetaPage `json:"meta_pages"`
}

type wireUser struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type wireTag struct {
	Name           string  `json:"name"`
	TranslatedName *string `json:"translated_name"`
}

type wireImageURLs struct {
	SquareMedium string `json:"square_medium"`
	Medium       string `json:"medium"`
	Large        string `json:"large"`
	Original     string `json:"original"`
}

type wireSinglePage struct {
	OriginalImageURL string `json:"original_image_url"`
}

type wireMetaPage struct {
	ImageURLs wireImageURLs `json:"image_urls"`
}

func (w wireIllust) toDomain() domain.RankingItem {
	item := domain.RankingItem{
		ID:         w.ID,
		Title:      w.Title,
		Type:       w.Type,
		AuthorID:   w.User.ID,
		AuthorName: w.User.Name,
		PageCount:  w.PageCount,
		XRestrict:  w.XRestrict,
		AIType:     w.IllustAIType,
		SinglePage: domain.PageURLs{
			Original: w.MetaSinglePage.OriginalImageURL,
			Large:    w.ImageURLs.Large,
			Medium:   w.ImageURLs.Medium,
		},
	}
	for _, tag := range w.Tags {
		item.Tags = append(item.Tags, domain.RankingTag{
			Name:           tag.Name,
			TranslatedName: tag.TranslatedName,
		})
	}
	for _, page := range w.MetaPages {
		item.MetaPages = append(item.MetaPages, domain.PageURLs{
			Original: page.ImageURLs.Original,
			Large:    page.ImageURLs.Large,
			Medium:   page.ImageURLs.Medium,
		})
	}
	return item
}
