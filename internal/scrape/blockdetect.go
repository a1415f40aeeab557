package scrape

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot wall detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockAkamai     BlockType = "akamai"
	BlockJSShell    BlockType = "js_shell"
)

// DetectBlock checks an HTTP response for signs of anti-bot protection.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	// Cloudflare: 403/503 with cf-* headers.
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-cache-status") != "" {
			return true, BlockCloudflare
		}
		if resp.Header.Get("server") == "cloudflare" {
			return true, BlockCloudflare
		}
		if strings.Contains(strings.ToLower(resp.Header.Get("server")), "akamai") {
			return true, BlockAkamai
		}
	}

	if blocked, bt := detectBody(string(body)); blocked {
		return true, bt
	}

	// JS-only shell: very small body with noscript or meta refresh.
	if len(body) < 2000 {
		lower := strings.ToLower(string(body))
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}

// DetectBlockHTML checks a rendered document for challenge or captcha
// walls. Rendered pages have already run their scripts, so JS shells are
// not reported.
func DetectBlockHTML(html string) (bool, BlockType) {
	return detectBody(html)
}

func detectBody(body string) (bool, BlockType) {
	lower := strings.ToLower(body)

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cf-challenge") ||
		(strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge")) {
		return true, BlockCloudflare
	}

	if strings.Contains(lower, "g-recaptcha") ||
		strings.Contains(lower, "h-captcha") ||
		strings.Contains(lower, "captcha-container") ||
		strings.Contains(lower, "画像認証") {
		return true, BlockCaptcha
	}

	if strings.Contains(lower, "access denied") && strings.Contains(lower, "reference #") {
		return true, BlockAkamai
	}

	return false, BlockNone
}
