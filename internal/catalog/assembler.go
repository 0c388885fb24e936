package catalog

import (
	"fmt"
	"sort"
)

// DefaultCodeTemplate derives the catalog code from a series id.
const DefaultCodeTemplate = "PX_BCB_%d"

// Assembler turns active enriched series into catalog records.
type Assembler struct {
	codeTemplate string
	endpoints    Endpoints
}

// NewAssembler builds an Assembler. An empty template uses DefaultCodeTemplate.
func NewAssembler(codeTemplate string, endpoints Endpoints) Assembler {
	if codeTemplate == "" {
		codeTemplate = DefaultCodeTemplate
	}
	return Assembler{codeTemplate: codeTemplate, endpoints: endpoints}
}

// Code returns the generated code for a series id.
func (a Assembler) Code(id int) string {
	return fmt.Sprintf(a.codeTemplate, id)
}

// Assemble builds one record per series id, ordered by id. Duplicate ids keep
// the first occurrence; candidates that are not Standard or Daily are skipped.
func (a Assembler) Assemble(items []Enriched) []Record {
	seen := make(map[int]struct{}, len(items))
	records := make([]Record, 0, len(items))
	for _, item := range items {
		id := item.Candidate.ID
		if !item.Candidate.Class.IsValid() {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		records = append(records, Record{
			SeriesID:      id,
			GeneratedCode: a.Code(id),
			Name:          item.Metadata.Name,
			Periodicity:   item.Metadata.Periodicity,
			Unit:          item.Metadata.Unit,
			Source:        item.Metadata.Source,
			Description:   item.Metadata.Description,
			LastUpdate:    item.Observation.Date.Format(DateLayout),
			APIURL:        a.endpoints.SeriesURL(id),
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].SeriesID < records[j].SeriesID })
	return records
}
