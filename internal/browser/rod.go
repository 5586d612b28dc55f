package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/Clean1ines/iXe/internal/utils"
)

// Browser owns the single Chromium process all pool tabs live in.
type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// Launch starts a Chromium instance. Certificate errors are ignored so
// the bank's occasionally broken TLS chain does not stall direct-render
// fallbacks.
func Launch(headless bool) (*Browser, error) {
	l := launcher.New().
		Headless(headless).
		Set("ignore-certificate-errors")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	utils.Debugf("browser launched: %s", controlURL)
	return &Browser{browser: b, launcher: l}, nil
}

// TabFactory returns a factory creating tabs in this browser, suitable
// for handing to NewPool.
func (b *Browser) TabFactory() TabFactory {
	return func(ctx context.Context) (Tab, error) {
		page, err := b.browser.Page(proto.TargetCreateTarget{})
		if err != nil {
			return nil, fmt.Errorf("create tab (browser may have crashed): %w", err)
		}
		return &rodTab{page: page}, nil
	}
}

// Close shuts the browser process down.
func (b *Browser) Close() {
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			utils.Debugf("closing browser: %v", err)
		}
	}
	if b.launcher != nil {
		b.launcher.Cleanup()
	}
}

// rodTab adapts *rod.Page to the pool's Tab interface.
type rodTab struct {
	page *rod.Page
}

func (t *rodTab) Navigate(ctx context.Context, url string) (err error) {
	defer recoverCrash(&err)
	p := t.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (t *rodTab) WaitSelector(ctx context.Context, selector string, timeout time.Duration) (err error) {
	defer recoverCrash(&err)
	_, err = t.page.Context(ctx).Timeout(timeout).Element(selector)
	return err
}

func (t *rodTab) HTML(ctx context.Context) (html string, err error) {
	defer recoverCrash(&err)
	return t.page.Context(ctx).HTML()
}

// Healthy probes the tab with a trivial script. A dead renderer process
// fails the eval.
func (t *rodTab) Healthy() bool {
	_, err := t.page.Timeout(2 * time.Second).Eval(`() => true`)
	return err == nil
}

func (t *rodTab) Close() error {
	return t.page.Close()
}

// recoverCrash converts rod panics into plain errors so a dying
// renderer never takes the whole run down.
func recoverCrash(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("browser tab panic: %v", r)
	}
}
