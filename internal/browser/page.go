package browser

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ahrdadan/verq/internal/harness"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// probeJS observes the DOM against a locator in a single evaluation so one
// poll sees one consistent snapshot. Text locators match the innermost
// elements containing the value.
const probeJS = `(kind, value) => {
	let nodes;
	if (kind === 'text') {
		nodes = Array.from(document.querySelectorAll('body *')).filter(el => {
			if (!(el.textContent || '').includes(value)) return false;
			for (const child of el.children) {
				if ((child.textContent || '').includes(value)) return false;
			}
			return true;
		});
	} else {
		nodes = Array.from(document.querySelectorAll(value));
	}
	const visible = nodes.some(el => {
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	});
	return { matches: nodes.length, visible: visible };
}`

// Target adapts a rod page to the operations the harness drives. One
// target is exclusively owned by one verification run.
type Target struct {
	page *rod.Page
}

func newTarget(page *rod.Page) *Target {
	return &Target{page: page}
}

// Navigate loads a URL. It does not wait for any post-load condition.
func (t *Target) Navigate(ctx context.Context, url string) error {
	if err := t.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Probe observes how many elements match the locator and whether any has a
// non-zero rendered box.
func (t *Target) Probe(ctx context.Context, loc harness.Locator) (harness.Probe, error) {
	res, err := t.page.Context(ctx).Eval(probeJS, string(loc.Kind), loc.Value)
	if err != nil {
		return harness.Probe{}, fmt.Errorf("failed to probe %s: %w", loc, err)
	}

	return harness.Probe{
		Matches: res.Value.Get("matches").Int(),
		Visible: res.Value.Get("visible").Bool(),
	}, nil
}

// Click dispatches a click on the element matching the locator. The
// element must match at invocation time; there is no implicit retry.
func (t *Target) Click(ctx context.Context, loc harness.Locator) error {
	el, err := t.element(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click %s: %w", loc, err)
	}
	return nil
}

// Fill replaces the content of the input element matching the locator.
func (t *Target) Fill(ctx context.Context, loc harness.Locator, value string) error {
	el, err := t.element(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("failed to select text in %s: %w", loc, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("failed to input value into %s: %w", loc, err)
	}
	return nil
}

// CaptureFull takes a full-page screenshot.
func (t *Target) CaptureFull(ctx context.Context) ([]byte, error) {
	data, err := t.page.Context(ctx).Screenshot(true, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return data, nil
}

// CaptureElement takes a screenshot scoped to the element matching the
// locator. Zero matches returns harness.ErrElementNotFound.
func (t *Target) CaptureElement(ctx context.Context, loc harness.Locator) ([]byte, error) {
	el, err := t.element(ctx, loc)
	if err != nil {
		return nil, err
	}
	data, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to screenshot %s: %w", loc, err)
	}
	return data, nil
}

// Close releases the page handle.
func (t *Target) Close() error {
	return t.page.Close()
}

func (t *Target) element(ctx context.Context, loc harness.Locator) (*rod.Element, error) {
	page := t.page.Context(ctx).Sleeper(rod.NotFoundSleeper)

	var el *rod.Element
	var err error
	if loc.Kind == harness.LocatorText {
		el, err = page.ElementR("*", regexp.QuoteMeta(loc.Value))
	} else {
		el, err = page.Element(loc.Value)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", harness.ErrElementNotFound, loc)
	}
	return el, nil
}
