package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"matchfeed/harvester/internal/browser"
)

const (
	DefaultPageTimeout       = 60 * time.Second
	DefaultReadyTimeout      = 10 * time.Second
	DefaultMaxShowMoreClicks = 50
	DefaultSettleDelay       = 300 * time.Millisecond

	// consecutive clicks that add no rows before the expansion gives up
	maxStaleClicks = 2
)

// ListingFetcher loads a results or fixtures page and expands it by
// clicking "show more" until the control disappears, stops adding rows, or
// MaxShowMoreClicks is reached.
type ListingFetcher struct {
	PageTimeout       time.Duration
	ReadyTimeout      time.Duration
	MaxShowMoreClicks int
	SettleDelay       time.Duration
	Log               *zap.Logger
}

// NewListingFetcher returns a fetcher with the default limits.
func NewListingFetcher(log *zap.Logger) *ListingFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &ListingFetcher{
		PageTimeout:       DefaultPageTimeout,
		ReadyTimeout:      DefaultReadyTimeout,
		MaxShowMoreClicks: DefaultMaxShowMoreClicks,
		SettleDelay:       DefaultSettleDelay,
		Log:               log,
	}
}

// Fetch navigates page to url and returns the expanded document HTML.
// It returns ErrNoListing when no match row ever appears.
func (f *ListingFetcher) Fetch(ctx context.Context, page browser.Page, url string) (string, error) {
	navCtx, cancel := context.WithTimeout(ctx, f.PageTimeout)
	err := page.Navigate(navCtx, url)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &FetchError{URL: url, Attempts: 1, Err: err}
	}

	if err := page.WaitVisible(ctx, ListingReadySelector, f.ReadyTimeout); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ErrNoListing
	}

	clicks, err := f.expand(ctx, page)
	if err != nil {
		return "", err
	}
	f.Log.Debug("listing expanded", zap.String("url", url), zap.Int("clicks", clicks))

	html, err := page.HTML(ctx, "body")
	if err != nil {
		return "", fmt.Errorf("read listing %s: %w", url, err)
	}
	return html, nil
}

func (f *ListingFetcher) expand(ctx context.Context, page browser.Page) (int, error) {
	clicks, stale := 0, 0
	for clicks < f.MaxShowMoreClicks {
		before, err := page.Count(ctx, ListingReadySelector)
		if err != nil {
			return clicks, f.pageErr(ctx, err)
		}

		clicked, err := page.Click(ctx, ShowMoreSelector)
		if err != nil {
			return clicks, f.pageErr(ctx, err)
		}
		if !clicked {
			break // control gone: listing fully expanded
		}
		clicks++

		if err := sleep(ctx, f.SettleDelay); err != nil {
			return clicks, err
		}

		after, err := page.Count(ctx, ListingReadySelector)
		if err != nil {
			return clicks, f.pageErr(ctx, err)
		}
		if after <= before {
			stale++
			if stale >= maxStaleClicks {
				break
			}
			continue
		}
		stale = 0
	}
	return clicks, nil
}

func (f *ListingFetcher) pageErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("expand listing: %w", err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsFetchError reports whether err is a page load failure.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
