package gazette

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"gazette_outreach/internal/model"
)

var (
	companyNumberRe  = regexp.MustCompile(`(?i)company\s*(?:registration\s*)?(?:number|no\.?)\s*[:.]?\s*(\d{6,8})\b`)
	prefixedNumberRe = regexp.MustCompile(`(?i)\b((?:SC|NI|OC|SO|NC|RC|CE|FC|NF|GE|LP|SL|NL)\d{5,8})\b`)
	courtRe          = regexp.MustCompile(`(?i)\b(?:in|of|at)\s+the\s+([\w ]{5,60}?(?:court|tribunal))\b`)
	emailRe          = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe          = regexp.MustCompile(`(?:\+44|\b0)\s?\d[\d \-]{8,13}\d\b`)
	titleSuffixRe    = regexp.MustCompile(`(?i)\s*(?:\(in [^)]*\)|-\s*winding[- ]up (?:petition|order))\s*`)

	// Longer roles first so "joint administrator" wins over "administrator".
	roleRe = regexp.MustCompile(`(?i)\b(administrative receivers?|provisional liquidators?|official receiver|` +
		`joint administrators?|joint liquidators?|joint receivers?|joint supervisors?|` +
		`administrators?|liquidators?|receivers?|supervisors?|trustees?|nominees?|insolvency practitioner)\b`)
	nameAfterRe  = regexp.MustCompile(`^[,:\s]*([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,3})`)
	nameBeforeRe = regexp.MustCompile(`([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,3})\s*,?\s*$`)
	firmRe       = regexp.MustCompile(`\bof\s+([^.,\d\n]+)`)
)

var categoryKeywords = []struct {
	keyword  string
	category model.NoticeCategory
}{
	{"members' voluntary", model.NoticeMembersVoluntary},
	{"members voluntary", model.NoticeMembersVoluntary},
	{"creditors' voluntary", model.NoticeCreditorsVoluntary},
	{"creditors voluntary", model.NoticeCreditorsVoluntary},
	{"administrative receiver", model.NoticeReceivership},
	{"receivership", model.NoticeReceivership},
	{"administration", model.NoticeAdministration},
	{"administrator", model.NoticeAdministration},
	{"winding-up order", model.NoticeWindingUpOrder},
	{"winding up order", model.NoticeWindingUpOrder},
	{"petitions to wind up", model.NoticeWindingUpPetition},
	{"winding-up petition", model.NoticeWindingUpPetition},
	{"winding up petition", model.NoticeWindingUpPetition},
	{"meetings of creditors", model.NoticeMeetingOfCreditors},
	{"meeting of creditors", model.NoticeMeetingOfCreditors},
	{"voluntary arrangement", model.NoticeVoluntaryArrangement},
}

// ParseEntry converts a feed entry into a notice. It reports false when the
// entry is not a supported notice type.
func ParseEntry(item *gofeed.Item) (model.Notice, bool) {
	html := item.Content
	if html == "" {
		html = item.Description
	}
	text := HTMLToText(html)

	category, ok := Categorize(item.Categories, item.Title, text)
	if !ok {
		return model.Notice{}, false
	}

	n := model.Notice{
		ID:            EntryID(item),
		Category:      category,
		Title:         strings.TrimSpace(item.Title),
		CompanyName:   companyName(item.Title, text),
		CompanyNumber: CompanyNumber(text),
		Court:         court(text),
		URL:           item.Link,
		Practitioners: Practitioners(text),
	}
	switch {
	case item.PublishedParsed != nil:
		n.PublishedAt = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		n.PublishedAt = item.UpdatedParsed.UTC()
	}
	return n, true
}

// Categorize finds the notice category from the entry categories, the
// title and the start of the notice text, in that order.
func Categorize(categories []string, title, text string) (model.NoticeCategory, bool) {
	if len(text) > 500 {
		text = text[:500]
	}
	for _, s := range []string{strings.Join(categories, " "), title, text} {
		s = strings.ToLower(s)
		for _, k := range categoryKeywords {
			if strings.Contains(s, k.keyword) {
				return k.category, true
			}
		}
	}
	return "", false
}

// HTMLToText flattens notice HTML to text with one block per line.
func HTMLToText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6, dt, dd").AppendHtml("\n")

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// CompanyNumber finds the registered company number in the notice text.
// Numeric numbers are zero-padded to eight digits.
func CompanyNumber(text string) string {
	if m := companyNumberRe.FindStringSubmatch(text); m != nil {
		return strings.Repeat("0", 8-len(m[1])) + m[1]
	}
	if m := prefixedNumberRe.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1])
	}
	return ""
}

func companyName(title, text string) string {
	name := strings.TrimSpace(titleSuffixRe.ReplaceAllString(title, " "))
	switch strings.ToLower(name) {
	case "", "notice", "insolvency notice":
		if first, _, _ := strings.Cut(text, "\n"); first != "" {
			return first
		}
	}
	return name
}

func court(text string) string {
	if m := courtRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// Practitioners extracts the office holders named in the notice text, each
// with the email address and phone number nearest to the role mention.
func Practitioners(text string) []model.Practitioner {
	emails := emailRe.FindAllStringIndex(text, -1)
	phones := phoneRe.FindAllStringIndex(text, -1)

	var out []model.Practitioner
	seen := make(map[string]bool)
	for _, loc := range roleRe.FindAllStringIndex(text, -1) {
		p := model.Practitioner{Role: titleCase(text[loc[0]:loc[1]])}

		after := text[loc[1]:min(len(text), loc[1]+200)]
		if m := nameAfterRe.FindStringSubmatch(after); m != nil {
			p.Name = m[1]
		} else if m := nameBeforeRe.FindStringSubmatch(text[max(0, loc[0]-100):loc[0]]); m != nil {
			p.Name = m[1]
		}
		if m := firmRe.FindStringSubmatch(after); m != nil {
			p.Firm = strings.TrimSpace(m[1])
		}
		p.Email = nearest(text, emails, loc[0])
		p.Phone = nearest(text, phones, loc[0])

		key := strings.ToLower(p.Name)
		if key == "" {
			key = strings.ToLower(p.Email)
		}
		if key == "" && p.Phone == "" {
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}

	if len(out) == 0 && (len(emails) > 0 || len(phones) > 0) {
		var p model.Practitioner
		if len(emails) > 0 {
			p.Email = text[emails[0][0]:emails[0][1]]
		}
		if len(phones) > 0 {
			p.Phone = text[phones[0][0]:phones[0][1]]
		}
		out = append(out, p)
	}
	return out
}

// nearest returns the match closest to pos within 200 bytes before and
// 300 bytes after it.
func nearest(text string, locs [][]int, pos int) string {
	type cand struct {
		dist int
		loc  []int
	}
	var cs []cand
	for _, loc := range locs {
		d := loc[0] - pos
		if d < -200 || d > 300 {
			continue
		}
		if d < 0 {
			d = -d
		}
		cs = append(cs, cand{d, loc})
	}
	if len(cs) == 0 {
		return ""
	}
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].dist < cs[j].dist })
	return strings.TrimSpace(text[cs[0].loc[0]:cs[0].loc[1]])
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
