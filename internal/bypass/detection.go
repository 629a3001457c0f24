// Package bypass recognises bot-wall and challenge pages so that callers can
// report them. Nothing here attempts to solve a challenge.
package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Page is the part of an HTTP response the detectors inspect.
type Page struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Detector examines a page to determine whether a bot protection mechanism
// blocked or challenged the request.
type Detector func(p Page) (detected bool, source string)

// DefaultDetectors returns the standard list of bot protection detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectGoogleSorry,
		detectConsentWall,
		detectRecaptcha,
		detectCloudflare,
	}
}

// Analyze runs the page through the detectors and returns the first match.
func Analyze(p Page, detectors []Detector) (bool, string) {
	for _, d := range detectors {
		if detected, source := d(p); detected {
			return true, source
		}
	}
	return false, ""
}

// detectGoogleSorry matches the "unusual traffic" interstitial served from
// /sorry/index, usually with a 429.
func detectGoogleSorry(p Page) (bool, string) {
	if strings.Contains(p.URL, "/sorry/") {
		return true, "GoogleSorry"
	}
	if p.StatusCode == http.StatusTooManyRequests || p.StatusCode == http.StatusServiceUnavailable {
		if bytes.Contains(p.Body, []byte("unusual traffic")) || bytes.Contains(p.Body, []byte("/sorry/")) {
			return true, "GoogleSorry"
		}
	}
	return false, ""
}

// detectConsentWall matches the EU consent redirect, which returns 200 but
// carries no results.
func detectConsentWall(p Page) (bool, string) {
	if strings.Contains(p.URL, "consent.google.") {
		return true, "ConsentWall"
	}
	return false, ""
}

func detectRecaptcha(p Page) (bool, string) {
	if bytes.Contains(p.Body, []byte("g-recaptcha")) || bytes.Contains(p.Body, []byte("recaptcha/api.js")) {
		return true, "reCAPTCHA"
	}
	return false, ""
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
func detectCloudflare(p Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden && p.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(p.Header.Get("Server")), "cloudflare") {
		return true, "Cloudflare"
	}
	if bytes.Contains(p.Body, []byte("cf-browser-verification")) ||
		bytes.Contains(p.Body, []byte("cf-turnstile")) ||
		bytes.Contains(p.Body, []byte("Attention Required! | Cloudflare")) {
		return true, "Cloudflare"
	}
	return false, ""
}
