package catalog

import (
	"fmt"
	"time"
)

// Default provider endpoints (Banco Central do Brasil SGS).
const (
	DefaultAPIBaseURL           = "https://api.bcb.gov.br/dados/serie/bcdata.sgs.%d/dados"
	DefaultMetadataContainerURL = "https://www3.bcb.gov.br/sgspub/consultarmetadados/consultarMetadadosSeries.do?method=consultarMetadadosSeriesInternet&hdOidSerieSelecionada=%d"
	DefaultMetadataContentURL   = "https://www3.bcb.gov.br/sgspub/JSP/consultarmetadados/cmiDadosBasicos.jsp"
	DefaultProviderDateLayout   = "02/01/2006"
)

// Endpoints builds every provider URL from the configured templates. APIBaseURL
// and MetadataContainerURL take the series id as their only %d verb.
type Endpoints struct {
	APIBaseURL           string
	MetadataContainerURL string
	MetadataContentURL   string
	DateLayout           string
}

// DefaultEndpoints returns the production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		APIBaseURL:           DefaultAPIBaseURL,
		MetadataContainerURL: DefaultMetadataContainerURL,
		MetadataContentURL:   DefaultMetadataContentURL,
		DateLayout:           DefaultProviderDateLayout,
	}
}

func (e Endpoints) base(id int) string {
	return fmt.Sprintf(e.APIBaseURL, id)
}

// LatestURL asks for the single most recent point.
func (e Endpoints) LatestURL(id int) string {
	return e.base(id) + "/ultimos/1?formato=json"
}

// RangeURL asks for every point between start and end, inclusive.
func (e Endpoints) RangeURL(id int, start, end time.Time) string {
	return fmt.Sprintf("%s?formato=json&dataInicial=%s&dataFinal=%s",
		e.base(id), start.Format(e.layout()), end.Format(e.layout()))
}

// SeriesURL is the canonical retrieval URL stored in the catalog.
func (e Endpoints) SeriesURL(id int) string {
	return e.base(id) + "?formato=json"
}

// ContainerURL initialises the metadata session for a series.
func (e Endpoints) ContainerURL(id int) string {
	return fmt.Sprintf(e.MetadataContainerURL, id)
}

// ContentURL returns the metadata table for whichever series the session holds.
func (e Endpoints) ContentURL() string {
	return e.MetadataContentURL
}

// ParseDate parses a provider date.
func (e Endpoints) ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse(e.layout(), raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse provider date %q: %w", raw, err)
	}
	return t, nil
}

func (e Endpoints) layout() string {
	if e.DateLayout == "" {
		return DefaultProviderDateLayout
	}
	return e.DateLayout
}
