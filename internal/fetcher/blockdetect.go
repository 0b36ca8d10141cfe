package fetcher

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// DetectBlock checks a fetched page for signs of anti-bot protection. It is
// meant for pages that already failed to yield results; a normal listing
// can mention captcha scripts without being a challenge page.
func DetectBlock(p *Page) (bool, BlockType) {
	if p == nil {
		return false, BlockNone
	}

	// Cloudflare: 403/503 with cf-* headers.
	if p.StatusCode == http.StatusForbidden || p.StatusCode == http.StatusServiceUnavailable {
		if p.Header.Get("cf-ray") != "" || p.Header.Get("cf-cache-status") != "" {
			return true, BlockCloudflare
		}
		if p.Header.Get("server") == "cloudflare" {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(p.Body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return true, BlockCloudflare
	}

	if strings.Contains(lower, "captcha") {
		return true, BlockCaptcha
	}

	// JS-only shell: very small body with noscript or meta refresh.
	if len(p.Body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}
