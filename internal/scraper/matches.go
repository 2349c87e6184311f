package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"matchfeed/harvester/internal/browser"
	"matchfeed/harvester/internal/model"
	"matchfeed/harvester/internal/pool"
)

// MatchFilter decides whether a listed match is kept.
type MatchFilter func(ListedMatch) bool

// PlayedOn keeps matches whose date text contains day's "dd.mm." stamp.
func PlayedOn(day time.Time) MatchFilter {
	stamp := day.Format("02.01.")
	return func(m ListedMatch) bool { return strings.Contains(m.Date, stamp) }
}

// Discovery is the outcome of reading one season listing.
type Discovery struct {
	Matches    []model.MatchDescriptor
	NoLink     int // rows with neither a link nor a usable node id
	Duplicates int
	Filtered   int
}

// MatchDiscoverer turns a season listing into match descriptors in
// document order.
type MatchDiscoverer struct {
	Pool          *pool.Pool[browser.Page]
	Fetcher       *ListingFetcher
	SiteBase      string
	PhaseKeywords []string
	Filter        MatchFilter
	Log           *zap.Logger
}

// Discover loads the season listing and folds it into descriptors. A page
// without any match row yields an empty Discovery and no error.
func (d *MatchDiscoverer) Discover(ctx context.Context, season model.SeasonDescriptor) (Discovery, error) {
	var html string
	err := d.Pool.With(ctx, func(page browser.Page) error {
		var err error
		html, err = d.Fetcher.Fetch(ctx, page, season.SourceURL)
		return err
	})
	if errors.Is(err, ErrNoListing) {
		d.logger().Info("no matches listed", zap.Stringer("season", season))
		return Discovery{}, nil
	}
	if err != nil {
		return Discovery{}, err
	}

	nodes, err := ParseListing(html)
	if err != nil {
		return Discovery{}, err
	}
	return d.Build(season, FoldListing(nodes)), nil
}

// Build attaches season context and detail URLs to listed matches. A
// composite key seen twice in one season keeps its first occurrence.
func (d *MatchDiscoverer) Build(season model.SeasonDescriptor, listed []ListedMatch) Discovery {
	var out Discovery
	seen := make(map[model.MatchKey]bool, len(listed))

	for _, lm := range listed {
		if d.Filter != nil && !d.Filter(lm) {
			out.Filtered++
			continue
		}

		href := lm.Href
		if href == "" {
			href = DetailPathFromNodeID(lm.NodeID)
		}
		detail := Resolve(d.SiteBase, href)
		if detail == "" {
			out.NoLink++
			continue
		}

		m := model.MatchDescriptor{
			Season:    season,
			Phase:     lm.Phase,
			PhaseKind: PhaseKind(lm.Phase, d.PhaseKeywords),
			Matchday:  lm.Matchday,
			Date:      lm.Date,
			Home:      lm.Home,
			Away:      lm.Away,
			DetailURL: detail,
		}
		if seen[m.Key()] {
			out.Duplicates++
			continue
		}
		seen[m.Key()] = true
		out.Matches = append(out.Matches, m)
	}
	return out
}

func (d *MatchDiscoverer) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

func (d Discovery) String() string {
	return fmt.Sprintf("matches=%d no_link=%d duplicates=%d filtered=%d",
		len(d.Matches), d.NoLink, d.Duplicates, d.Filtered)
}
