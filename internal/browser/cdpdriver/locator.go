// internal/browser/cdpdriver/locator.go
package cdpdriver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
)

// ErrUnsupportedStrategy is returned for a locator strategy the driver cannot map.
var ErrUnsupportedStrategy = errors.New("unsupported locator strategy")

// Locator strategies understood by the driver, named as WebDriver clients send them.
const (
	StrategyCSS             = "css selector"
	StrategyCSSShort        = "css"
	StrategyID              = "id"
	StrategyName            = "name"
	StrategyClassName       = "class name"
	StrategyTagName         = "tag name"
	StrategyXPath           = "xpath"
	StrategyLinkText        = "link text"
	StrategyPartialLinkText = "partial link text"
)

// locator is a strategy/selector pair translated into a chromedp query.
type locator struct {
	query string
	by    chromedp.QueryOption
	xpath bool
}

func resolveLocator(strategy, selector string) (locator, error) {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case StrategyCSS, StrategyCSSShort:
		return cssLocator(selector), nil
	case StrategyID:
		return cssLocator(fmt.Sprintf("[id=%s]", cssString(selector))), nil
	case StrategyName:
		return cssLocator(fmt.Sprintf("[name=%s]", cssString(selector))), nil
	case StrategyClassName:
		return cssLocator(fmt.Sprintf("[class~=%s]", cssString(selector))), nil
	case StrategyTagName:
		return cssLocator(selector), nil
	case StrategyXPath:
		return xpathLocator(selector), nil
	case StrategyLinkText:
		return xpathLocator(fmt.Sprintf("//a[normalize-space(.)=%s]", xpathString(selector))), nil
	case StrategyPartialLinkText:
		return xpathLocator(fmt.Sprintf("//a[contains(., %s)]", xpathString(selector))), nil
	default:
		return locator{}, fmt.Errorf("%w: %q", ErrUnsupportedStrategy, strategy)
	}
}

func cssLocator(q string) locator {
	return locator{query: q, by: chromedp.ByQueryAll}
}

// DOM.performSearch, behind BySearch, evaluates plain XPath expressions.
func xpathLocator(q string) locator {
	return locator{query: q, by: chromedp.BySearch, xpath: true}
}

// cssString quotes s as a CSS string literal.
func cssString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)
	return `"` + r.Replace(s) + `"`
}

// xpathString quotes s as an XPath 1.0 literal. XPath has no escapes, so a value
// containing both quote kinds is spliced together with concat().
func xpathString(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
