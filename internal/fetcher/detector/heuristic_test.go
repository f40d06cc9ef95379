package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mhatretamish/linkedin/internal/scraper"
)

func resp(status int, body string) scraper.FetchResponse {
	return scraper.FetchResponse{StatusCode: status, Body: []byte(body)}
}

func TestShouldPromote(t *testing.T) {
	t.Parallel()

	fullPage := "<html><body>" + strings.Repeat("<p>job description text</p>", 200) + "</body></html>"
	scriptShell := "<html><head><script>window.__DATA__={}</script><script src='x.js'></script></head><body></body></html>"

	tests := []struct {
		name string
		resp scraper.FetchResponse
		want bool
	}{
		{"static content page", resp(200, fullPage), false},
		{"empty body", resp(200, ""), true},
		{"small script-heavy shell", resp(200, scriptShell), true},
		{"next.js marker", resp(200, fullPage+`<div id="__next"></div>`), true},
		{"react root marker", resp(200, fullPage+`<div id="root"></div>`), true},
		{"linkedin authwall", resp(200, `<html><body class="authwall">Join now to see this content</body></html>`), true},
		{"captcha challenge", resp(200, fullPage+`<div id="captcha-challenge"></div>`), true},
		{"linkedin 999", resp(999, "denied"), true},
		{"forbidden", resp(403, "blocked"), true},
		{"rate limited", resp(429, "slow down"), true},
		{"not found", resp(404, "gone"), false},
		{"server error", resp(500, ""), false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := NewHeuristic(0)
			assert.Equal(t, tc.want, h.ShouldPromote(tc.resp))
		})
	}
}

func TestShouldPromoteNeverLoopsOnHeadless(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0)
	r := scraper.FetchResponse{StatusCode: 999, Body: nil, UsedHeadless: true}
	assert.False(t, h.ShouldPromote(r))
}

func TestScriptDensity(t *testing.T) {
	t.Parallel()

	assert.False(t, scriptDensityHigh([]byte("<html><body>plain</body></html>")))
	assert.True(t, scriptDensityHigh([]byte("<script>var x = 1; var y = 2;</script><p>x</p>")))
	assert.True(t, scriptDensityHigh([]byte("<script>never closed")))
	assert.False(t, scriptDensityHigh(nil))
}
