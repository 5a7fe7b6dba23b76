package arxiv

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/paperlab/arxiv-harvester/internal/harvest"
)

// Header is the ledger schema, one column per extracted field.
var Header = []string{"arxiv_code", "title", "tags", "authors", "submit_date", "comments", "url", "abstract"}

// Record is one parsed search-result entry.
type Record struct {
	Code       string
	Title      string
	Tags       string
	Authors    string
	SubmitDate string
	Comments   string
	URL        string
	Abstract   string
}

// Row serializes the record in Header order.
func (r Record) Row() []string {
	return []string{r.Code, r.Title, r.Tags, r.Authors, r.SubmitDate, r.Comments, r.URL, r.Abstract}
}

var totalPattern = regexp.MustCompile(`\d+(,\d+)*`)

const submittedPrefix = "Submitted "

// Extractor implements harvest.PageParser for advanced-search result
// pages.
type Extractor struct{}

// NewExtractor constructs an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Parse pulls the declared total, the empty-result marker and the result
// entries out of one search page.
func (e *Extractor) Parse(body []byte) (harvest.Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return harvest.Page{}, fmt.Errorf("parse search page: %w", err)
	}

	title := strings.TrimSpace(doc.Find("main#main-container h1.title.is-clearfix").Text())
	if strings.HasPrefix(title, "Sorry") {
		return harvest.Page{NoResults: true}, nil
	}

	matches := totalPattern.FindAllString(title, -1)
	if len(matches) == 0 {
		return harvest.Page{}, fmt.Errorf("no match count in page title %q", title)
	}
	total, err := strconv.Atoi(strings.ReplaceAll(matches[len(matches)-1], ",", ""))
	if err != nil {
		return harvest.Page{}, fmt.Errorf("parse match count: %w", err)
	}

	var rows [][]string
	doc.Find("main#main-container li.arxiv-result").Each(func(_ int, sel *goquery.Selection) {
		rows = append(rows, extractRecord(sel).Row())
	})

	return harvest.Page{Total: total, Rows: rows}, nil
}

func extractRecord(sel *goquery.Selection) Record {
	rawURL := strings.TrimSpace(sel.Find("p.list-title.is-inline-block a").First().AttrOr("href", ""))
	parts := strings.Split(rawURL, "/")
	code := parts[len(parts)-1]

	tags := sel.Find("div.tags.is-inline-block span").Map(func(_ int, tag *goquery.Selection) string {
		return tag.AttrOr("data-tooltip", "")
	})
	sort.Strings(tags)

	authors := sel.Find("p.authors a").Map(func(_ int, a *goquery.Selection) string {
		return a.Text()
	})

	return Record{
		Code:       code,
		Title:      strings.TrimSpace(sel.Find("p.title.is-5.mathjax").Text()),
		Tags:       strings.Join(tags, ","),
		Authors:    strings.Join(authors, ","),
		SubmitDate: extractSubmitDate(sel),
		Comments:   strings.TrimSpace(sel.Find("p.comments.is-size-7 span").Eq(1).Text()),
		URL:        rawURL,
		Abstract:   extractAbstract(sel),
	}
}

// extractSubmitDate finds the "Submitted 17 Jan 2023; ..." line and
// normalizes the most recent submission date to ISO form.
func extractSubmitDate(sel *goquery.Selection) string {
	var line string
	sel.Find("p.is-size-7").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		text := strings.TrimSpace(p.Text())
		if strings.HasPrefix(text, submittedPrefix) {
			line = text
			return false
		}
		return true
	})
	if line == "" {
		return ""
	}
	raw := strings.TrimSpace(strings.TrimPrefix(strings.SplitN(line, ";", 2)[0], submittedPrefix))
	parsed, err := time.Parse("2 January, 2006", raw)
	if err != nil {
		if parsed, err = time.Parse("2 Jan 2006", raw); err != nil {
			return raw
		}
	}
	return parsed.Format(harvest.DateFormat)
}

// extractAbstract drops the trailing "Less" toggle line the full
// abstract span carries.
func extractAbstract(sel *goquery.Selection) string {
	abstract := strings.TrimSpace(sel.Find("span.abstract-full.has-text-grey-dark.mathjax").Text())
	if i := strings.LastIndex(abstract, "\n"); i >= 0 {
		abstract = abstract[:i]
	}
	return strings.TrimSpace(abstract)
}
