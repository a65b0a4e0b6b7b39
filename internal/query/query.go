// Package query filters, sorts and paginates an item collection.
package query

import (
	"cmp"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/vyrodovalexey/inventory-catalog/internal/model"
)

// Pagination defaults and limits.
const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Sort fields.
const (
	SortByName     = "name"
	SortByCategory = "category"
	SortByPrice    = "price"
)

// Sort orders.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Parameter error messages.
const (
	MsgInvalidPage  = "Invalid page parameter"
	MsgInvalidLimit = "Invalid limit parameter"
	MsgInvalidSort  = "Invalid sort parameter: must be one of name, category, price"
	MsgInvalidOrder = "Invalid order parameter: must be asc or desc"
)

// Params describes a listing query. Zero values select the defaults.
type Params struct {
	Search    string
	SortField string
	SortOrder string
	Page      int
	PageSize  int
}

// WithDefaults returns p with unset fields replaced by their defaults.
func (p Params) WithDefaults() Params {
	if p.SortOrder == "" {
		p.SortOrder = OrderAsc
	}
	if p.Page == 0 {
		p.Page = DefaultPage
	}
	if p.PageSize == 0 {
		p.PageSize = DefaultPageSize
	}
	return p
}

// Validate checks the parameters after defaults have been applied.
func (p Params) Validate() error {
	if p.SortField != "" && p.SortField != SortByName &&
		p.SortField != SortByCategory && p.SortField != SortByPrice {
		return model.NewParamError(MsgInvalidSort)
	}

	if p.SortOrder != OrderAsc && p.SortOrder != OrderDesc {
		return model.NewParamError(MsgInvalidOrder)
	}

	if p.Page < 1 {
		return model.NewParamError(MsgInvalidPage)
	}

	if p.PageSize < 1 || p.PageSize > MaxPageSize {
		return model.NewParamError(MsgInvalidLimit)
	}

	return nil
}

// Engine runs listing queries. String fields are ordered with the
// collation rules of the configured language.
type Engine struct {
	tag language.Tag
}

// NewEngine creates an Engine that sorts strings according to tag.
func NewEngine(tag language.Tag) *Engine {
	return &Engine{tag: tag}
}

// Run filters, sorts and paginates items. The input slice is not modified.
func (e *Engine) Run(items []model.Item, params Params) (model.Page, error) {
	p := params.WithDefaults()
	if err := p.Validate(); err != nil {
		return model.Page{}, err
	}

	results := Filter(items, p.Search)

	if p.SortField != "" {
		e.sort(results, p.SortField, p.SortOrder == OrderDesc)
	}

	return Paginate(results, p.Page, p.PageSize), nil
}

// Filter returns the items whose name or category contains term,
// ignoring case. An empty term keeps every item. The result never aliases items.
func Filter(items []model.Item, term string) []model.Item {
	if term == "" {
		return slices.Clone(items)
	}

	needle := strings.ToLower(term)
	results := make([]model.Item, 0, len(items))
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Name), needle) ||
			strings.Contains(strings.ToLower(item.Category), needle) {
			results = append(results, item)
		}
	}
	return results
}

// sort orders items in place. Equal elements keep their collection order.
func (e *Engine) sort(items []model.Item, field string, desc bool) {
	// Collators keep internal buffers and must not be shared between goroutines.
	col := collate.New(e.tag)

	var compare func(a, b model.Item) int
	switch field {
	case SortByName:
		compare = func(a, b model.Item) int { return col.CompareString(a.Name, b.Name) }
	case SortByCategory:
		compare = func(a, b model.Item) int { return col.CompareString(a.Category, b.Category) }
	default:
		compare = func(a, b model.Item) int { return cmp.Compare(a.Price, b.Price) }
	}

	if desc {
		asc := compare
		compare = func(a, b model.Item) int { return asc(b, a) }
	}

	slices.SortStableFunc(items, compare)
}

// Paginate slices items into the requested page. A page past the end is
// empty rather than an error.
func Paginate(items []model.Item, page, pageSize int) model.Page {
	total := len(items)
	totalPages := (total + pageSize - 1) / pageSize

	data := []model.Item{}
	if page <= totalPages {
		start := (page - 1) * pageSize
		end := min(start+pageSize, total)
		data = items[start:end]
	}

	return model.Page{
		Data: data,
		Pagination: model.Pagination{
			CurrentPage:     page,
			TotalPages:      totalPages,
			TotalItems:      total,
			ItemsPerPage:    pageSize,
			HasNextPage:     page < totalPages,
			HasPreviousPage: page > 1,
		},
	}
}
