package browser_test

import (
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"

	"matchfeed/harvester/internal/browser"
)

func TestBuildAllocatorOptions_ExtendsDefaults(t *testing.T) {
	base := len(chromedp.DefaultExecAllocatorOptions)

	minimal := browser.BuildAllocatorOptions(browser.Options{Headless: true})
	assert.Greater(t, len(minimal), base)

	full := browser.BuildAllocatorOptions(browser.Options{
		Headless:       true,
		ExecPath:       "/usr/bin/chromium",
		UserAgent:      browser.DefaultUserAgent,
		BlockResources: true,
	})
	// blink-settings, user agent and exec path each add one option
	assert.Equal(t, len(minimal)+3, len(full))
}

func TestDefaultOptions(t *testing.T) {
	opts := browser.DefaultOptions()
	assert.True(t, opts.Headless)
	assert.True(t, opts.BlockResources)
	assert.Equal(t, browser.DefaultWindowWidth, opts.WindowWidth)
}
