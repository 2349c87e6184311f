package scraper_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"matchfeed/harvester/internal/browser"
	"matchfeed/harvester/internal/pool"
)

const siteBase = "https://www.flashscore.co"

// fakeSite serves canned documents to fake pages.
type fakeSite struct {
	mu          sync.Mutex
	docs        map[string]string
	failures    map[string]int // navigations left to fail per URL
	navigations map[string]int
	showMore    int // clicks the show-more control accepts
	clicks      int
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		docs:        make(map[string]string),
		failures:    make(map[string]int),
		navigations: make(map[string]int),
	}
}

func (s *fakeSite) navCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigations[url]
}

type fakePage struct {
	site    *fakeSite
	current string
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	p.site.navigations[url]++
	if p.site.failures[url] > 0 {
		p.site.failures[url]--
		return errors.New("net::ERR_TIMED_OUT")
	}
	if _, ok := p.site.docs[url]; !ok {
		return errors.New("net::ERR_NAME_NOT_RESOLVED")
	}
	p.current = url
	return nil
}

func (p *fakePage) doc() (*goquery.Document, error) {
	p.site.mu.Lock()
	html := p.site.docs[p.current]
	p.site.mu.Unlock()
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (p *fakePage) WaitVisible(ctx context.Context, selector string, _ time.Duration) error {
	n, err := p.Count(ctx, selector)
	if err != nil {
		return err
	}
	if n == 0 {
		return context.DeadlineExceeded
	}
	return nil
}

func (p *fakePage) HTML(context.Context, string) (string, error) {
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	return p.site.docs[p.current], nil
}

func (p *fakePage) Count(_ context.Context, selector string) (int, error) {
	d, err := p.doc()
	if err != nil {
		return 0, err
	}
	return d.Find(selector).Length(), nil
}

func (p *fakePage) Click(context.Context, string) (bool, error) {
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	if p.site.showMore == 0 {
		return false, nil
	}
	p.site.showMore--
	p.site.clicks++
	return true, nil
}

func (p *fakePage) Reset(context.Context) error {
	p.current = "about:blank"
	return nil
}

func (p *fakePage) Close() error { return nil }

func newPagePool(t *testing.T, site *fakeSite) *pool.Pool[browser.Page] {
	t.Helper()
	p := pool.New(func(context.Context) (browser.Page, error) {
		return &fakePage{site: site}, nil
	}, pool.Options{MaxPages: 2, SweepInterval: time.Hour})
	t.Cleanup(p.Close)
	return p
}

func fixture(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(b)
}
