// internal/browser/cdpdriver/allocator.go
package cdpdriver

import (
	"context"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/scalpel-inspector/internal/config"
)

// Allocate returns the allocator context for the inspected browser: a remote
// allocator when browser.remote_url is set, otherwise a locally launched browser.
func Allocate(ctx context.Context, cfg config.Interface) (context.Context, context.CancelFunc) {
	if remote := cfg.Browser().RemoteURL; remote != "" {
		return chromedp.NewRemoteAllocator(ctx, remote)
	}
	return chromedp.NewExecAllocator(ctx, ExecOptions(cfg)...)
}

// ExecOptions translates the browser config into chromedp launch options.
func ExecOptions(cfg config.Interface) []chromedp.ExecAllocatorOption {
	browserCfg := cfg.Browser()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	// The defaults already include headless mode.
	if !browserCfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if browserCfg.DisableGPU {
		opts = append(opts, chromedp.DisableGPU)
	}
	if vp := browserCfg.Viewport; vp.Width > 0 && vp.Height > 0 {
		opts = append(opts, chromedp.WindowSize(vp.Width, vp.Height))
	}

	for _, arg := range browserCfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
			continue
		}
		opts = append(opts, chromedp.Flag(name, true))
	}
	return opts
}
