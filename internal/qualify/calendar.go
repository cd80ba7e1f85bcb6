package qualify

import (
	"strings"
	"time"

	"gazette_outreach/internal/contact"
)

// DayBounds returns the start of now's calendar day in loc and the start of
// the next one.
func DayBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// DaysBetween counts calendar days from a to b in loc. Time of day is ignored,
// so a contact made at 16:00 fourteen days ago counts as fourteen days.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// FirmKey is the key the per-firm cap counts under: the firm name when the
// notice gives one, otherwise the registrable domain of the address.
func FirmKey(firm, email string) string {
	firm = strings.ToLower(strings.Join(strings.Fields(firm), " "))
	if firm != "" {
		return firm
	}
	return contact.Domain(email)
}
