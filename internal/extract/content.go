package extract

import (
	"strings"

	"chatextract/internal/dom"
)

// Denylist matches interactive and decorative descendants whose text is UI
// chrome, not message content.
var Denylist = strings.Join([]string{
	"button",
	"[role='button']",
	"svg",
	"mat-icon",
	"script",
	"style",
	"template",
	"noscript",
	"[aria-hidden='true']",
	"[class*='copy']",
	"[class*='icon']",
	"[class*='toolbar']",
	"[class*='actions']",
	"[class*='feedback']",
}, ", ")

// ExtractContent returns the normalized text of container c, or "" when
// nothing survives normalization.
//
// With a content selector the first matching descendant is used (no match
// yields ""); otherwise the container itself. Denylisted descendants are
// skipped either way. The tree is only read.
func ExtractContent(c dom.Node, cfg Config) string {
	src := c
	if cfg.Content != "" {
		n, ok := c.SelectOne(cfg.Content)
		if !ok {
			return ""
		}
		src = n
	}
	return cfg.normalizeText(src.TextWithout(Denylist))
}
