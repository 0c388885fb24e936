package enricher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
	"github.com/JakeFAU/sgs-catalog/internal/metadata"
	"github.com/JakeFAU/sgs-catalog/internal/progress"
	"github.com/JakeFAU/sgs-catalog/internal/transport"
)

var testEndpoints = catalog.Endpoints{
	APIBaseURL:           "http://api.test/%d",
	MetadataContainerURL: "http://meta.test/container?id=%d",
	MetadataContentURL:   "http://meta.test/content",
	DateLayout:           catalog.DefaultProviderDateLayout,
}

var today = time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return today }

func (fixedClock) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func table(periodicity string) string {
	rows := `<tr><td>Nome:</td><td>Série teste</td></tr>`
	if periodicity != "" {
		rows += `<tr><td>Periodicidade:</td><td>` + periodicity + `</td></tr>`
	}
	return `<html><body><table>` + rows + `<tr><td>Fonte:</td><td>BCB</td></tr></table></body></html>`
}

// fakeSite simulates the provider: a session is bound to a series by the
// container request, and the content request serves that series' table.
type fakeSite struct {
	mu             sync.Mutex
	pages          map[int]string
	containerCodes map[int]int
	data           map[string]string
	requested      []string
}

func (s *fakeSite) Get(_ context.Context, url string, _ time.Duration) (catalog.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requested = append(s.requested, url)
	body, ok := s.data[url]
	if !ok {
		return catalog.Response{URL: url, StatusCode: http.StatusNotFound}, nil
	}
	return catalog.Response{URL: url, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

func (s *fakeSite) NewSession() catalog.Session {
	return &fakeSession{site: s, bound: -1}
}

func (s *fakeSite) Requested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requested...)
}

type fakeSession struct {
	site   *fakeSite
	bound  int
	closed bool
}

func (f *fakeSession) Get(_ context.Context, url string) (catalog.Response, error) {
	if f.closed {
		return catalog.Response{}, fmt.Errorf("session closed")
	}
	if url == testEndpoints.ContentURL() {
		page, ok := f.site.pages[f.bound]
		if f.bound < 0 || !ok {
			return catalog.Response{URL: url, StatusCode: http.StatusForbidden}, nil
		}
		return catalog.Response{URL: url, StatusCode: http.StatusOK, Body: []byte(page)}, nil
	}
	var id int
	if _, err := fmt.Sscanf(url, "http://meta.test/container?id=%d", &id); err != nil {
		return catalog.Response{}, err
	}
	if code, ok := f.site.containerCodes[id]; ok && code != http.StatusOK {
		return catalog.Response{URL: url, StatusCode: code}, nil
	}
	f.bound = id
	return catalog.Response{URL: url, StatusCode: http.StatusOK, Body: []byte("<frameset/>")}, nil
}

func (f *fakeSession) Close() { f.closed = true }

func newEnricher(t *testing.T, tr catalog.SessionTransport, endpoints catalog.Endpoints) *Enricher {
	t.Helper()
	e, err := New(Config{Concurrency: 3}, tr, endpoints, metadata.NewParser(metadata.Labels{}), fixedClock{}, progress.NewTracker(), zap.NewNop())
	require.NoError(t, err)
	return e
}

func TestEnricher_Enrich(t *testing.T) {
	t.Parallel()

	windowStart := today.AddDate(0, 0, -30)
	site := &fakeSite{
		pages: map[int]string{
			1: table("Mensal"),
			2: table(""),
			3: table("Mensal"),
			4: table("Diária"),
			5: table("Anual"),
		},
		containerCodes: map[int]int{5: http.StatusInternalServerError},
		data: map[string]string{
			testEndpoints.LatestURL(1):                    `[{"data":"01/09/2026","valor":"0.44"}]`,
			testEndpoints.LatestURL(2):                    `[{"data":"01/09/2026","valor":"0.44"}]`,
			testEndpoints.LatestURL(3):                    `[]`,
			testEndpoints.RangeURL(4, windowStart, today): `[{"data":"16/10/2026","valor":"15.00"}]`,
			testEndpoints.LatestURL(5):                    `[{"data":"01/01/2026","valor":"1"}]`,
		},
	}

	e := newEnricher(t, site, testEndpoints)
	got, err := e.Enrich(context.Background(), []catalog.Candidate{
		{ID: 4, Class: catalog.ClassDaily},
		{ID: 1, Class: catalog.ClassStandard},
		{ID: 2, Class: catalog.ClassStandard},
		{ID: 3, Class: catalog.ClassStandard},
		{ID: 5, Class: catalog.ClassStandard},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Equal(t, 1, got[0].Candidate.ID)
	require.Equal(t, "Mensal", *got[0].Metadata.Periodicity)
	require.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), got[0].Observation.Date)

	require.Equal(t, 4, got[1].Candidate.ID)
	require.Equal(t, "Diária", *got[1].Metadata.Periodicity)
	require.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), got[1].Observation.Date)

	require.Contains(t, site.Requested(), "http://api.test/4?formato=json&dataInicial=18/09/2026&dataFinal=18/10/2026")
	require.NotContains(t, site.Requested(), testEndpoints.LatestURL(4))
	require.NotContains(t, site.Requested(), testEndpoints.LatestURL(5))

	snap := e.tracker.Snapshot()
	require.Equal(t, 2, snap.Enriched)
	require.Equal(t, 3, snap.Excluded)
}

func TestEnricher_MissingPeriodicityIsMetadataError(t *testing.T) {
	t.Parallel()

	site := &fakeSite{pages: map[int]string{7: table("")}}
	e := newEnricher(t, site, testEndpoints)

	_, err := e.enrichOne(context.Background(), catalog.Candidate{ID: 7, Class: catalog.ClassStandard})
	var metaErr *catalog.MetadataError
	require.ErrorAs(t, err, &metaErr)
	require.Equal(t, "content", metaErr.Step)
	require.ErrorIs(t, err, metadata.ErrTableNotFound)
}

func TestEnricher_DailyUsesLastPointOfWindow(t *testing.T) {
	t.Parallel()

	start := today.AddDate(0, 0, -30)
	site := &fakeSite{data: map[string]string{
		testEndpoints.RangeURL(9, start, today): `[{"data":"10/10/2026","valor":"1"},{"data":"17/10/2026","valor":"2"}]`,
	}}
	f := dailyFetcher{transport: site, endpoints: testEndpoints, timeout: time.Second, window: DefaultDailyWindow, clock: fixedClock{}}

	got, err := f.LastObservation(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), got)
}

func TestEnricher_EmptyStandardIsNoRecentData(t *testing.T) {
	t.Parallel()

	site := &fakeSite{data: map[string]string{testEndpoints.LatestURL(8): `[]`}}
	f := standardFetcher{transport: site, endpoints: testEndpoints, timeout: time.Second}

	_, err := f.LastObservation(context.Background(), 8)
	require.ErrorIs(t, err, catalog.ErrNoRecentData)
}

func TestEnricher_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newEnricher(t, &fakeSite{}, testEndpoints)
	_, err := e.Enrich(ctx, []catalog.Candidate{{ID: 1, Class: catalog.ClassStandard}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestEnricher_RealSessionCarriesCookies(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/container", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "serie", Value: r.URL.Query().Get("id"), Path: "/"})
		_, _ = w.Write([]byte("<frameset></frameset>"))
	})
	mux.HandleFunc("/content", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("serie")
		if err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(strings.Replace(table("Mensal"), "Série teste", "Série "+cookie.Value, 1)))
	})
	mux.HandleFunc("/dados/21/dados/ultimos/1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"data":"30/09/2026","valor":"3.1"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	endpoints := catalog.Endpoints{
		APIBaseURL:           srv.URL + "/dados/%d/dados",
		MetadataContainerURL: srv.URL + "/container?id=%d",
		MetadataContentURL:   srv.URL + "/content",
		DateLayout:           catalog.DefaultProviderDateLayout,
	}
	client := transport.New(transport.Config{Concurrency: 2, Timeout: 2 * time.Second}, zap.NewNop())
	e := newEnricher(t, client, endpoints)

	got, err := e.Enrich(context.Background(), []catalog.Candidate{{ID: 21, Class: catalog.ClassStandard}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Série 21", *got[0].Metadata.Name)
	require.Equal(t, time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC), got[0].Observation.Date)
}
