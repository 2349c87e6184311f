package scraper

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"matchfeed/harvester/internal/browser"
	"matchfeed/harvester/internal/model"
	"matchfeed/harvester/internal/pool"
)

const (
	DefaultHistoricalSeasons = 4
	archiveLinkSelector      = "a.archiveLatte__text--clickable"
)

var fourDigitsRe = regexp.MustCompile(`\d{4}`)

// ArchiveSeason is one past season link found on an archive page.
type ArchiveSeason struct {
	Label string
	URL   string // results page of the season
}

// ParseArchive extracts season links from an archive page, newest first.
// Team links and links without a year are ignored.
func ParseArchive(html, siteBase string) ([]ArchiveSeason, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse archive: %w", err)
	}

	links := doc.Find(archiveLinkSelector)
	if links.Length() == 0 {
		links = doc.Find("a").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.Contains(s.Text(), "20")
		})
	}

	var out []ArchiveSeason
	links.Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || !fourDigitsRe.MatchString(href) || IsTeamLink(href) {
			return
		}
		path := href
		if u, err := url.Parse(href); err == nil {
			path = u.Path
		}
		label := SeasonLabelFromURL(path)
		if label == "" {
			return
		}
		abs := Resolve(siteBase, href)
		if abs == "" {
			return
		}
		out = append(out, ArchiveSeason{Label: label, URL: ResultsURL(abs)})
	})

	sort.SliceStable(out, func(i, j int) bool { return out[i].Label > out[j].Label })
	return out, nil
}

// SeasonDiscoverer produces the seasons of a league: the current season
// first, then up to Historical past seasons from the archive page.
type SeasonDiscoverer struct {
	Pool         *pool.Pool[browser.Page]
	SiteBase     string
	Historical   int
	PageTimeout  time.Duration
	ReadyTimeout time.Duration
	// Lite yields only the current season's fixtures page.
	Lite bool
	Now  func() time.Time
	Log  *zap.Logger
}

// Seasons returns a lazy, one-shot sequence. The current season is yielded
// before the archive is requested; a failing archive only shortens the
// sequence.
func (d *SeasonDiscoverer) Seasons(ctx context.Context, league model.League) iter.Seq[model.SeasonDescriptor] {
	return func(yield func(model.SeasonDescriptor) bool) {
		log := d.logger().With(zap.String("league", league.BaseURL))

		ref, err := ParseLeagueURL(league.BaseURL)
		if err != nil {
			log.Warn("skipping league with unusable url", zap.Error(err))
			return
		}
		if league.Country == "" {
			league.Country = ref.Country
		}
		if league.Slug == "" {
			league.Slug = ref.Slug
		}

		if ref.PinnedSeason != "" {
			yield(model.SeasonDescriptor{League: league, Label: ref.PinnedSeason, SourceURL: ResultsURL(ref.PinnedURL)})
			return
		}

		current := CurrentSeasonLabel(d.now())
		if d.Lite {
			yield(model.SeasonDescriptor{League: league, Label: current, SourceURL: FixturesURL(ref.BaseURL)})
			return
		}
		if !yield(model.SeasonDescriptor{League: league, Label: current, SourceURL: ResultsURL(ref.BaseURL)}) {
			return
		}

		if d.Historical <= 0 || ctx.Err() != nil {
			return
		}
		past, err := d.archive(ctx, ref.BaseURL)
		if err != nil {
			log.Warn("archive unavailable, continuing with current season only", zap.Error(err))
			return
		}

		seen := map[string]bool{current: true}
		n := 0
		for _, s := range past {
			if n >= d.Historical {
				return
			}
			if seen[s.Label] {
				continue
			}
			seen[s.Label] = true
			if !yield(model.SeasonDescriptor{League: league, Label: s.Label, SourceURL: s.URL}) {
				return
			}
			n++
		}
	}
}

func (d *SeasonDiscoverer) archive(ctx context.Context, base string) ([]ArchiveSeason, error) {
	var html string
	err := d.Pool.With(ctx, func(page browser.Page) error {
		navCtx, cancel := context.WithTimeout(ctx, d.pageTimeout())
		defer cancel()
		if err := page.Navigate(navCtx, ArchiveURL(base)); err != nil {
			return &FetchError{URL: ArchiveURL(base), Attempts: 1, Err: err}
		}
		// the archive is static enough to read even if the wait times out
		_ = page.WaitVisible(ctx, archiveLinkSelector, d.readyTimeout())
		var err error
		html, err = page.HTML(ctx, "body")
		return err
	})
	if err != nil {
		return nil, err
	}
	return ParseArchive(html, d.SiteBase)
}

func (d *SeasonDiscoverer) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *SeasonDiscoverer) pageTimeout() time.Duration {
	if d.PageTimeout > 0 {
		return d.PageTimeout
	}
	return DefaultPageTimeout
}

func (d *SeasonDiscoverer) readyTimeout() time.Duration {
	if d.ReadyTimeout > 0 {
		return d.ReadyTimeout
	}
	return DefaultReadyTimeout
}

func (d *SeasonDiscoverer) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}
