// Package arxiv adapts the harvester to the arXiv advanced-search API:
// query construction on the way out, field extraction on the way back.
package arxiv

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/paperlab/arxiv-harvester/internal/harvest"
)

// SearchURL is the advanced-search endpoint.
const SearchURL = "https://arxiv.org/search/advanced"

// DefaultFields are the cross-list categories harvested by default.
var DefaultFields = []string{
	"Artificial Intelligence",
	"Computation and Language",
	"Computational Engineering, Finance, and Science",
	"Computer Vision and Pattern Recognition",
	"Databases",
	"Distributed, Parallel, and Cluster Computing",
	"Graphics",
	"Information Retrieval",
	"Machine Learning",
	"Networking and Internet Architecture",
}

// QueryBuilder produces search requests with a fixed page size.
type QueryBuilder struct {
	size int
}

// NewQueryBuilder constructs a QueryBuilder.
func NewQueryBuilder(pageSize int) *QueryBuilder {
	return &QueryBuilder{size: pageSize}
}

// Build assembles a fresh advanced-search request for the triple.
func (b *QueryBuilder) Build(field string, r harvest.DateRange, offset int) harvest.Request {
	params := url.Values{
		"advanced":                          {""},
		"terms-0-operator":                  {"AND"},
		"terms-0-term":                      {field},
		"terms-0-field":                     {"cross_list_category"},
		"classification-computer_science":   {"y"},
		"classification-physics_archives":   {"all"},
		"classification-include_cross_list": {"exclude"},
		"date-year":                         {""},
		"date-filter_by":                    {"date_range"},
		"date-from_date":                    {r.FromString()},
		"date-to_date":                      {r.ToString()},
		"date-date_type":                    {"submitted_date"},
		"abstracts":                         {"show"},
		"size":                              {strconv.Itoa(b.size)},
		"order":                             {"announced_date_first"},
		"start":                             {strconv.Itoa(offset)},
	}
	return harvest.Request{
		URL:    SearchURL,
		Params: params,
		Field:  field,
		Range:  r,
		Offset: offset,
	}
}

// PDFURL returns the artifact location for one arXiv code.
func PDFURL(code string) string {
	return fmt.Sprintf("https://arxiv.org/pdf/%s.pdf", code)
}
