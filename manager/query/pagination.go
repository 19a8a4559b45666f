package query

type PageConfig struct {
	ItemsPerPage int `yaml:"itemsPerPage"`
	MidPoint     int `yaml:"midPoint"`
	FirstPage    int `yaml:"firstPage"`
}

func DefaultPageConfig() PageConfig {
	return PageConfig{ItemsPerPage: 20, MidPoint: 5, FirstPage: 1}
}

type Pagination struct {
	Count        int64 `json:"count"`
	Page         int   `json:"page"`
	ItemsPerPage int   `json:"itemsPerPage"`
	MidPoint     int   `json:"midPoint"`
	FirstPage    int   `json:"firstPage"`
	LastPage     int   `json:"lastPage"`
	// The visible page links are [RangeStart, RangeEnd).
	RangeStart int `json:"rangeStart"`
	RangeEnd   int `json:"rangeEnd"`
}

// Offset is the row offset of page. Pages before the first page map to 0.
func (c PageConfig) Offset(page int) int {
	if page <= c.FirstPage {
		return 0
	}
	return (page - c.FirstPage) * c.ItemsPerPage
}

// Paginate computes the last page and the window of page links around page.
// Pages past the end never fail; the window is clamped to the known pages.
func Paginate(count int64, page int, cfg PageConfig) Pagination {
	perPage := max(cfg.ItemsPerPage, 1)
	if page < cfg.FirstPage {
		page = cfg.FirstPage
	}

	lastPage := int((count + int64(perPage) - 1) / int64(perPage))
	lastPage = max(lastPage, cfg.FirstPage)

	mid := cfg.MidPoint

	rangeStart := cfg.FirstPage
	if page-mid > 0 {
		rangeStart = page - mid + 1
	}

	rangeEnd := lastPage + 1
	if page+mid < lastPage {
		if page < mid {
			rangeEnd = mid * 2
		} else {
			rangeEnd = page + mid
		}
	}

	rangeStart = min(max(rangeStart, cfg.FirstPage), lastPage)
	rangeEnd = min(max(rangeEnd, rangeStart+1), lastPage+1)

	return Pagination{
		Count:        count,
		Page:         page,
		ItemsPerPage: perPage,
		MidPoint:     mid,
		FirstPage:    cfg.FirstPage,
		LastPage:     lastPage,
		RangeStart:   rangeStart,
		RangeEnd:     rangeEnd,
	}
}
