package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"matchfeed/harvester/internal/model"
)

const (
	resultsSegment  = "resultados"
	fixturesSegment = "partidos"
	archiveSegment  = "archivo"
)

var (
	yearRe       = regexp.MustCompile(`\b(20\d{2})\b`)
	pinnedSlugRe = regexp.MustCompile(`^(.+?)-(20\d{2})-(20\d{2})$`)
)

// trailing page segments stripped from a league URL before parsing it.
var pageSegments = map[string]bool{
	resultsSegment:  true,
	fixturesSegment: true,
	archiveSegment:  true,
	"clasificacion": true,
	"results":       true,
	"fixtures":      true,
	"archive":       true,
}

// LeagueRef is what a league URL tells us.
type LeagueRef struct {
	Country      string
	Slug         string // league slug without any season suffix
	BaseURL      string // https://host/<sport>/<country>/<slug>/
	PinnedSeason string // "2021-2022" when the URL points at one past season
	PinnedURL    string // season base URL when PinnedSeason is set
}

// ParseLeagueURL splits a league URL like
// https://www.flashscore.co/futbol/espana/laliga-ea-sports/ into its parts.
func ParseLeagueURL(raw string) (LeagueRef, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return LeagueRef{}, fmt.Errorf("parse league url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return LeagueRef{}, fmt.Errorf("league url %q is not absolute", raw)
	}

	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	for len(parts) > 0 && pageSegments[parts[len(parts)-1]] {
		parts = parts[:len(parts)-1]
	}
	if len(parts) < 2 {
		return LeagueRef{}, fmt.Errorf("league url %q has no country/league path", raw)
	}

	country := parts[len(parts)-2]
	slug := parts[len(parts)-1]
	prefix := parts[:len(parts)-1]
	origin := u.Scheme + "://" + u.Host

	ref := LeagueRef{Country: country, Slug: slug}
	if m := pinnedSlugRe.FindStringSubmatch(slug); m != nil {
		ref.Slug = m[1]
		ref.PinnedSeason = m[2] + "-" + m[3]
		ref.PinnedURL = origin + "/" + strings.Join(append(prefix[:len(prefix):len(prefix)], slug), "/") + "/"
	}
	ref.BaseURL = origin + "/" + strings.Join(append(prefix[:len(prefix):len(prefix)], ref.Slug), "/") + "/"
	return ref, nil
}

// LeagueFromArg builds a League from a CLI argument of the form
// "url" or "url|outputName".
func LeagueFromArg(arg string) (model.League, error) {
	raw, name, _ := strings.Cut(arg, "|")
	ref, err := ParseLeagueURL(raw)
	if err != nil {
		return model.League{}, err
	}
	base := ref.BaseURL
	if ref.PinnedURL != "" {
		base = ref.PinnedURL
	}
	return model.League{
		Name:       strings.TrimSpace(name),
		Country:    ref.Country,
		Slug:       ref.Slug,
		BaseURL:    base,
		OutputName: strings.TrimSpace(name),
		Active:     true,
	}, nil
}

// CurrentSeasonLabel returns the season running at now: seasons start in
// August, so September 2024 is "2024-2025" and March 2025 is too.
func CurrentSeasonLabel(now time.Time) string {
	y := now.Year()
	if now.Month() >= time.August {
		return fmt.Sprintf("%d-%d", y, y+1)
	}
	return fmt.Sprintf("%d-%d", y-1, y)
}

// SeasonLabelFromURL derives "y1-y2" from the years in a season URL. A
// single year y yields "y-(y+1)"; no year yields "".
func SeasonLabelFromURL(s string) string {
	years := yearRe.FindAllString(s, -1)
	switch {
	case len(years) >= 2:
		return years[0] + "-" + years[1]
	case len(years) == 1:
		y, _ := strconv.Atoi(years[0])
		return fmt.Sprintf("%d-%d", y, y+1)
	}
	return ""
}

func withSegment(base, segment string) string {
	return strings.TrimRight(base, "/") + "/" + segment + "/"
}

// ResultsURL is the finished-matches listing of a season base URL.
func ResultsURL(base string) string {
	if strings.HasSuffix(strings.TrimRight(base, "/"), "/"+resultsSegment) {
		return strings.TrimRight(base, "/") + "/"
	}
	return withSegment(base, resultsSegment)
}

// FixturesURL is the upcoming/today listing of a league.
func FixturesURL(base string) string { return withSegment(base, fixturesSegment) }

// ArchiveURL is the page listing past seasons of a league.
func ArchiveURL(base string) string { return withSegment(base, archiveSegment) }

// Resolve makes href absolute against the site origin.
func Resolve(siteBase, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return href
	}
	base, err := url.Parse(siteBase)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// DetailPathFromNodeID turns a listing row id like "g_1_AbC123" into the
// match page path "/partido/AbC123/". It returns "" for foreign ids.
func DetailPathFromNodeID(id string) string {
	if !strings.HasPrefix(id, "g_") {
		return ""
	}
	parts := strings.Split(id, "_")
	code := parts[len(parts)-1]
	if code == "" {
		return ""
	}
	return "/partido/" + code + "/"
}

// IsTeamLink reports whether href points at a team page instead of a season.
func IsTeamLink(href string) bool {
	return strings.Contains(href, "/equipo/") || strings.Contains(href, "/team/")
}
