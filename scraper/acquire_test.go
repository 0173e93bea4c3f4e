package scraper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"leilao-insights/models"
	"leilao-insights/utils"
)

func htmlPage(size int) string {
	body := strings.Repeat("x", size)
	return "<!DOCTYPE html><HTML><body>" + body + "</body></html>"
}

type fakeRenderer struct {
	calls atomic.Int32
	html  string
	err   error
}

func (f *fakeRenderer) Render(ctx context.Context, target string, headers map[string]string) (string, error) {
	f.calls.Add(1)
	return f.html, f.err
}

type snapshotSink struct {
	mu    sync.Mutex
	snaps []models.Snapshot
}

func (s *snapshotSink) SaveSnapshot(ctx context.Context, snap models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return nil
}

func newTestAcquirer(srvURL string, r Renderer, snaps *snapshotSink) *Acquirer {
	cfg := AcquirerConfig{
		Fetcher:      NewStaticFetcher(2*time.Second, BrowserHeaders("test-agent"), nil),
		Renderer:     r,
		Headers:      BrowserHeaders("test-agent"),
		MinHTMLBytes: 1000,
		Logger:       utils.NewLoggerTo(io.Discard),
	}
	if snaps != nil {
		cfg.Snapshots = snaps
	}
	return NewAcquirer(cfg)
}

func TestUsable(t *testing.T) {
	cases := []struct {
		html string
		want bool
	}{
		{htmlPage(2000), true},
		{htmlPage(10), false},
		{strings.Repeat("y", 5000), false},
		{"<Html>" + strings.Repeat("z", 1000), true},
	}
	for _, c := range cases {
		if got := Usable(c.html, 1000); got != c.want {
			t.Errorf("Usable(%d bytes) = %v; want %v", len(c.html), got, c.want)
		}
	}
}

func TestAcquireStaticSuccessSkipsRender(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		io.WriteString(w, htmlPage(2000))
	}))
	defer srv.Close()

	r := &fakeRenderer{html: htmlPage(3000)}
	a := newTestAcquirer(srv.URL, r, nil)

	got, err := a.Acquire(context.Background(), srv.URL+"/imovel/1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got.Via != models.ViaStatic {
		t.Errorf("Via = %q; want static", got.Via)
	}
	if r.calls.Load() != 0 {
		t.Errorf("renderer called %d times; want 0", r.calls.Load())
	}
	if gotUA != "test-agent" || !strings.HasPrefix(gotLang, "pt-BR") {
		t.Errorf("headers = UA %q, Accept-Language %q", gotUA, gotLang)
	}
}

func TestAcquireEscalatesOnShortMarkup(t *testing.T) {
	stub := "<html><body>" + strings.Repeat("a", 200-len("<html><body></body></html>")) + "</body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, stub)
	}))
	defer srv.Close()

	r := &fakeRenderer{html: htmlPage(5000)}
	snaps := &snapshotSink{}
	a := newTestAcquirer(srv.URL, r, snaps)

	got, err := a.Acquire(context.Background(), srv.URL+"/imovel/2")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got.Via != models.ViaRendered {
		t.Errorf("Via = %q; want rendered", got.Via)
	}
	if n := r.calls.Load(); n != 1 {
		t.Errorf("renderer called %d times; want exactly 1", n)
	}
	if len(snaps.snaps) != 2 {
		t.Fatalf("saved %d snapshots; want static and rendered", len(snaps.snaps))
	}
	if snaps.snaps[0].Origin != models.ViaStatic || snaps.snaps[1].Origin != models.ViaRendered {
		t.Errorf("snapshot origins = %q, %q", snaps.snaps[0].Origin, snaps.snaps[1].Origin)
	}
}

func TestAcquireEscalatesOnHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	r := &fakeRenderer{html: htmlPage(5000)}
	a := newTestAcquirer(srv.URL, r, nil)

	got, err := a.Acquire(context.Background(), srv.URL+"/imovel/3")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got.Via != models.ViaRendered || r.calls.Load() != 1 {
		t.Errorf("Via = %q, render calls = %d; want rendered once", got.Via, r.calls.Load())
	}
}

func TestAcquireFailsWhenBothStagesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>captcha</html>")
	}))
	defer srv.Close()

	cases := []*fakeRenderer{
		{err: errors.New("browser crashed")},
		{html: "<html>still short</html>"},
	}
	for _, r := range cases {
		a := newTestAcquirer(srv.URL, r, nil)
		_, err := a.Acquire(context.Background(), srv.URL+"/imovel/4")
		if !errors.Is(err, models.ErrAcquisition) {
			t.Errorf("Acquire err = %v; want ErrAcquisition", err)
		}
	}
}

func TestStaticFetcherRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, htmlPage(1500))
	}))
	defer srv.Close()

	f := NewStaticFetcher(time.Second, nil, &utils.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Logger:      utils.NewLoggerTo(io.Discard),
	})
	body, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !Usable(body, 1000) {
		t.Errorf("Fetch body not usable (%d bytes)", len(body))
	}
	if hits.Load() != 2 {
		t.Errorf("server hit %d times; want 2", hits.Load())
	}
}

func TestStaticFetcherDoesNotRetryNotFound(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewStaticFetcher(time.Second, nil, &utils.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond})
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("Fetch of a 404 should fail")
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times; want 1", hits.Load())
	}
}

func TestLifecycleWatchIgnoresEventsBeforeInit(t *testing.T) {
	w := newLifecycleWatch()
	w.observe("DOMContentLoaded")
	w.observe("networkIdle")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.wait(ctx, time.Millisecond); err == nil {
		t.Fatal("wait returned before the navigated document was ready")
	}

	w.observe("init")
	w.observe("DOMContentLoaded")
	if err := w.wait(context.Background(), time.Millisecond); err != nil {
		t.Errorf("wait after DOMContentLoaded: %v", err)
	}
}
