// Package browser drives headless Chrome through chromedp and exposes each
// tab as a Page the resource pool can lease.
package browser

import (
	"github.com/chromedp/chromedp"
)

const (
	DefaultWindowWidth  = 1366
	DefaultWindowHeight = 900
	DefaultUserAgent    = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
)

// Options configures the Chrome process and its tabs.
type Options struct {
	Headless       bool
	ExecPath       string // empty: let chromedp find Chrome
	UserAgent      string
	WindowWidth    int
	WindowHeight   int
	BlockResources bool // images, fonts, stylesheets and media
}

// DefaultOptions returns the options used for scraping runs.
func DefaultOptions() Options {
	return Options{
		Headless:       true,
		UserAgent:      DefaultUserAgent,
		WindowWidth:    DefaultWindowWidth,
		WindowHeight:   DefaultWindowHeight,
		BlockResources: true,
	}
}

// blockedPatterns are passed to Network.setBlockedURLs on every tab.
var blockedPatterns = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg", "*.ico",
	"*.woff", "*.woff2", "*.ttf", "*.otf",
	"*.css",
	"*.mp4", "*.webm",
	"*googletagmanager*", "*google-analytics*", "*doubleclick*",
}

// BuildAllocatorOptions turns Options into chromedp exec allocator flags.
func BuildAllocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	if opts.WindowWidth == 0 || opts.WindowHeight == 0 {
		opts.WindowWidth, opts.WindowHeight = DefaultWindowWidth, DefaultWindowHeight
	}

	chromeOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("mute-audio", true),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
	)

	if opts.BlockResources {
		chromeOpts = append(chromeOpts,
			chromedp.Flag("blink-settings", "imagesEnabled=false"),
		)
	}
	if opts.UserAgent != "" {
		chromeOpts = append(chromeOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		chromeOpts = append(chromeOpts, chromedp.ExecPath(opts.ExecPath))
	}

	return chromeOpts
}
