// Package contact picks the practitioner to write to and normalises addresses.
package contact

import (
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"gazette_outreach/internal/model"
)

var (
	emailRe      = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	leadMarkerRe = regexp.MustCompile(`(?i)\b(lead|principal|senior)\b`)
)

// SelectPrimary returns the single practitioner to contact for a notice, or
// false when nobody listed has an email address. A practitioner whose role
// marks them as lead, principal or senior wins; otherwise the first one
// with an email in listed order.
func SelectPrimary(practitioners []model.Practitioner) (model.Practitioner, bool) {
	first := -1
	for i, p := range practitioners {
		if strings.TrimSpace(p.Email) == "" {
			continue
		}
		if first < 0 {
			first = i
		}
		if leadMarkerRe.MatchString(p.Role) {
			return practitioners[i], true
		}
	}
	if first < 0 {
		return model.Practitioner{}, false
	}
	return practitioners[first], true
}

// ValidEmail reports whether s is a syntactically valid address.
func ValidEmail(s string) bool {
	return emailRe.MatchString(s)
}

// Normalize lowercases and trims an address.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Host returns the lowercased part after the @, or "" if there is none.
func Host(email string) string {
	i := strings.LastIndexByte(email, '@')
	if i < 0 || i == len(email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[i+1:]))
}

// Domain returns the registrable domain of an address, so that
// "jane@mail.ipfirm.co.uk" and "bob@ipfirm.co.uk" share "ipfirm.co.uk".
func Domain(email string) string {
	host := Host(email)
	if host == "" {
		return ""
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// BlockKeys returns the blocklist values that bar an address: the address,
// its host and its registrable domain.
func BlockKeys(email string) []string {
	email = Normalize(email)
	keys := []string{email}
	host := Host(email)
	if host == "" {
		return keys
	}
	keys = append(keys, host)
	if d := Domain(email); d != host {
		keys = append(keys, d)
	}
	return keys
}
