// Package metadata extracts the key/value table from a series metadata page.
package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
)

// ErrTableNotFound means no two-column table carried the periodicity label.
var ErrTableNotFound = errors.New("metadata table not found")

// Labels are the row headings read from the metadata table.
type Labels struct {
	Name        string
	Periodicity string
	Unit        string
	Source      string
	Description string
}

// DefaultLabels returns the Portuguese headings used by the SGS pages.
func DefaultLabels() Labels {
	return Labels{
		Name:        "Nome",
		Periodicity: "Periodicidade",
		Unit:        "Unidade",
		Source:      "Fonte",
		Description: "Comentário",
	}
}

// Parser turns metadata HTML into SeriesMetadata.
type Parser struct {
	labels Labels
}

// NewParser builds a parser. Empty labels fall back to DefaultLabels.
func NewParser(labels Labels) *Parser {
	def := DefaultLabels()
	if labels.Name == "" {
		labels.Name = def.Name
	}
	if labels.Periodicity == "" {
		labels.Periodicity = def.Periodicity
	}
	if labels.Unit == "" {
		labels.Unit = def.Unit
	}
	if labels.Source == "" {
		labels.Source = def.Source
	}
	if labels.Description == "" {
		labels.Description = def.Description
	}
	return &Parser{labels: labels}
}

// Parse finds the metadata table and maps its rows to fields. Fields whose
// row is missing or empty stay nil.
func (p *Parser) Parse(body []byte) (catalog.SeriesMetadata, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return catalog.SeriesMetadata{}, fmt.Errorf("parse metadata html: %w", err)
	}
	values, ok := p.findTable(doc)
	if !ok {
		return catalog.SeriesMetadata{}, ErrTableNotFound
	}
	return catalog.SeriesMetadata{
		Name:        lookup(values, p.labels.Name),
		Periodicity: lookup(values, p.labels.Periodicity),
		Unit:        lookup(values, p.labels.Unit),
		Source:      lookup(values, p.labels.Source),
		Description: lookup(values, p.labels.Description),
	}, nil
}

// findTable returns the rows of the first leaf table that has two columns and
// a first-column cell mentioning the periodicity label.
func (p *Parser) findTable(doc *goquery.Document) (map[string]string, bool) {
	var (
		found  map[string]string
		marker = strings.ToLower(p.labels.Periodicity)
	)
	doc.Find("table").EachWithBreak(func(_ int, tbl *goquery.Selection) bool {
		if tbl.Find("table").Length() > 0 {
			return true
		}
		values, ok := readPairs(tbl)
		if !ok {
			return true
		}
		for key := range values {
			if strings.Contains(strings.ToLower(key), marker) {
				found = values
				return false
			}
		}
		return true
	})
	return found, found != nil
}

// readPairs reads a table whose widest row has exactly two cells.
func readPairs(tbl *goquery.Selection) (map[string]string, bool) {
	values := make(map[string]string)
	width := 0
	tbl.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td, th")
		width = max(width, cells.Length())
		if cells.Length() != 2 {
			return
		}
		key := cleanKey(cells.Eq(0).Text())
		if key == "" {
			return
		}
		if _, dup := values[key]; !dup {
			values[key] = collapse(cells.Eq(1).Text())
		}
	})
	return values, width == 2 && len(values) > 0
}

func lookup(values map[string]string, label string) *string {
	for key, v := range values {
		if strings.EqualFold(key, label) {
			return catalog.StringPtr(v)
		}
	}
	return nil
}

func cleanKey(raw string) string {
	return collapse(strings.ReplaceAll(raw, ":", ""))
}

func collapse(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
