package extract

import (
	"strings"

	"chatextract/internal/dom"
)

var challengeTitles = []string{
	"just a moment",
	"attention required",
	"verify you are human",
	"are you a robot",
	"access denied",
	"security check",
}

var challengeSelectors = []struct {
	selector string
	reason   string
}{
	{"#challenge-form, #challenge-running, #cf-challenge-running, .cf-browser-verification", "cloudflare challenge"},
	{".g-recaptcha, iframe[src*='recaptcha']", "recaptcha"},
	{".h-captcha, iframe[src*='hcaptcha']", "hcaptcha"},
	{"iframe[src*='challenges.cloudflare.com'], .cf-turnstile", "cloudflare turnstile"},
}

// DetectChallenge reports whether doc looks like an anti-bot interstitial
// instead of the requested page, and why. It only detects; solving the
// challenge is left to the operator (e.g. saving the page from a browser).
func DetectChallenge(doc *dom.Document) (reason string, found bool) {
	title := strings.ToLower(doc.Title())
	for _, t := range challengeTitles {
		if strings.Contains(title, t) {
			return "title: " + t, true
		}
	}
	root := doc.Root()
	for _, c := range challengeSelectors {
		if _, ok := root.SelectOne(c.selector); ok {
			return c.reason, true
		}
	}
	return "", false
}
