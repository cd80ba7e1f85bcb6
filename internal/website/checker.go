// Package website guesses a company's domain from its name and checks
// whether a site is live there.
package website

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"
)

const (
	userAgent = "Mozilla/5.0 (compatible; GazetteOutreach/1.0)"
	maxPage   = 512 * 1024
)

// Stripped from the end of a company name, in this order.
var nameSuffixes = []string{
	" limited", " ltd", " plc", " llp", " lp", " inc", " corp", " (uk)", " uk", " group", " holdings",
}

var extensions = []string{".co.uk", ".com", ".uk", ".org.uk", ".net"}

var (
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9\s]`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

var parkedPhrases = []string{
	"domain is for sale",
	"buy this domain",
	"domain may be for sale",
	"parked free",
	"domain parking",
	"this domain is parked",
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Checker probes candidate domains for a live website.
type Checker struct {
	client HTTPClient
	log    *slog.Logger
	scheme string
}

// NewChecker creates a Checker. The client should follow redirects.
func NewChecker(client HTTPClient, log *slog.Logger) *Checker {
	return &Checker{client: client, log: log, scheme: "https"}
}

// CheckWebsite reports whether any candidate domain for the company name
// serves a page that is not a parking page.
func (c *Checker) CheckWebsite(ctx context.Context, companyName string) bool {
	for _, domain := range Candidates(companyName) {
		for _, host := range []string{domain, "www." + domain} {
			if ctx.Err() != nil {
				return false
			}
			if c.live(ctx, host) {
				c.log.Debug("website found", "company_name", companyName, "host", host)
				return true
			}
		}
	}
	return false
}

// Candidates returns the domains a company with this name might use, most
// likely first.
func Candidates(companyName string) []string {
	name := strings.ToLower(strings.TrimSpace(companyName))
	for _, s := range nameSuffixes {
		if strings.HasSuffix(name, s) {
			name = strings.TrimSpace(strings.TrimSuffix(name, s))
		}
	}
	clean := strings.TrimSpace(nonAlnumRe.ReplaceAllString(name, ""))
	if clean == "" {
		return nil
	}

	joined := spaceRe.ReplaceAllString(clean, "")
	hyphen := spaceRe.ReplaceAllString(clean, "-")

	var out []string
	seen := make(map[string]bool)
	add := func(d string) {
		if seen[d] || !registrable(d) {
			return
		}
		seen[d] = true
		out = append(out, d)
	}
	for _, slug := range []string{joined, hyphen} {
		for _, ext := range extensions {
			add(slug + ext)
		}
	}
	if first := strings.Fields(clean)[0]; first != joined && len(first) > 3 {
		for _, ext := range extensions[:2] {
			add(first + ext)
		}
	}
	return out
}

// registrable reports whether d is a domain someone could register
// directly under a public suffix.
func registrable(d string) bool {
	if len(d) > 253 || len(strings.SplitN(d, ".", 2)[0]) > 63 {
		return false
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(d)
	return err == nil && etld1 == d
}

func (c *Checker) live(ctx context.Context, host string) bool {
	u := c.scheme + "://" + host
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return !c.parked(ctx, u)
	case http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// parked fetches the page and looks for domain-parking phrases. A page that
// cannot be read counts as not parked.
func (c *Checker) parked(ctx context.Context, u string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPage))
	if err != nil {
		return false
	}
	text := strings.ToLower(doc.Find("title").Text() + " " + doc.Find("body").Text())
	for _, p := range parkedPhrases {
		if strings.Contains(text, p) {
			c.log.Debug("parked domain", "url", u, "phrase", p)
			return true
		}
	}
	return false
}
