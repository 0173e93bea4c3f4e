package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// latePage swaps its content from a request issued shortly after the DOM
// is ready, so the final markup only shows up after network idle.
const latePage = `<!DOCTYPE html><html><body><div id="x">early</div>
<script>setTimeout(function () {
  fetch('/late').then(function (r) { return r.text(); }).then(function (t) {
    document.getElementById('x').textContent = t;
  });
}, 200);</script></body></html>`

func TestRenderersWaitForNetworkIdle(t *testing.T) {
	if testing.Short() {
		t.Skip("launches a browser")
	}
	bin := findChromeBinary()
	if bin == "" {
		t.Skip("no Chrome binary found")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/late" {
			time.Sleep(100 * time.Millisecond)
			fmt.Fprint(w, "late content")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, latePage)
	}))
	defer srv.Close()

	renderers := map[string]Renderer{
		"chromedp": NewChromeRenderer(bin, "test-agent", 30*time.Second),
		"rod":      NewRodRenderer(bin, "test-agent", 30*time.Second),
	}
	for name, r := range renderers {
		html, err := r.Render(context.Background(), srv.URL, BrowserHeaders("test-agent"))
		if err != nil {
			t.Errorf("%s: Render() error: %v", name, err)
			continue
		}
		if !strings.Contains(html, "late content") {
			t.Errorf("%s: rendered markup lacks the late content:\n%s", name, html)
		}
	}
}
