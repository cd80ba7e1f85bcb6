// Package scoring rates insolvency notices as acquisition opportunities.
//
// The score is a heuristic in [0,100]. The strongest signals are whether the
// company was really trading (live website, filed accounts, secured charges)
// and the kind of proceedings, since administrations and receiverships are
// where businesses and assets are sold.
package scoring

import (
	"fmt"
	"strings"

	"gazette_outreach/internal/model"
)

const baseScore = 30

// Category thresholds.
const (
	HighThreshold   = 65
	MediumThreshold = 40
	LowThreshold    = 20
)

var assetRichSICPrefixes = []string{
	"01",
	"10", "11",
	"13", "14", "15", "16", "17",
	"20", "21", "22", "23", "24", "25", "26", "27", "28", "29", "30", "31", "32",
	"41", "42", "43",
	"45", "46", "47",
	"49", "50", "51", "52",
	"55", "56",
	"68",
	"71",
	"86",
	"93",
}

var fullAccountTypes = map[string]bool{
	"full":                       true,
	"group":                      true,
	"medium":                     true,
	"small":                      true,
	"audit-exemption-subsidiary": true,
}

// Score rates an enriched notice. It depends only on the notice's own fields.
func Score(n model.EnrichedNotice) model.OpportunityScore {
	if n.Registry.Status.IsDead() {
		return model.OpportunityScore{
			NoticeID: n.ID,
			Score:    0,
			Category: model.CategorySkip,
			Signals:  []string{fmt.Sprintf("Company %s on the register", n.Registry.Status)},
		}
	}

	score := baseScore
	var signals []string
	add := func(delta int, format string, args ...any) {
		score += delta
		signals = append(signals, fmt.Sprintf(format, args...))
	}

	switch n.Category {
	case model.NoticeAdministration, model.NoticeReceivership, model.NoticeCreditorsVoluntary,
		model.NoticeWindingUpOrder, model.NoticeMeetingOfCreditors, model.NoticeVoluntaryArrangement:
		add(15, "Notice type suggests assets may be available (%s)", n.Category.Label())
	case model.NoticeMembersVoluntary:
		add(-20, "Solvent wind-down (%s)", n.Category.Label())
	}

	if n.Registry.Found {
		scoreRegistry(n.Registry, add)
	} else {
		add(-5, "Not found on the company register")
	}

	if n.WebsiteLive {
		add(15, "Company website is live")
	} else {
		add(-5, "No website found")
	}

	if len(n.Practitioners) > 0 {
		add(5, "Practitioner contact listed on the notice")
	}

	score = clamp(score, 0, 100)
	return model.OpportunityScore{
		NoticeID: n.ID,
		Score:    score,
		Category: CategoryFor(score),
		Signals:  signals,
	}
}

func scoreRegistry(r model.RegistryData, add func(int, string, ...any)) {
	switch r.Status {
	case model.RegistryActive:
		add(5, "Company status: active")
	case model.RegistryLiquidation, model.RegistryAdministration, model.RegistryReceivership:
		add(3, "Company status: %s", r.Status)
	}

	accounts := strings.ToLower(r.AccountsType)
	switch {
	case fullAccountTypes[accounts]:
		add(12, "Filed %s accounts", accounts)
	case accounts == "dormant":
		add(-15, "Dormant accounts")
	case accounts == "micro-entity":
		add(-5, "Micro-entity accounts")
	case accounts == "unaudited-abridged" || accounts == "initial":
		add(-2, "Accounts type: %s", accounts)
	case accounts == "" && !r.HasAccountsFilings:
		add(-10, "No accounts on file")
	}

	if r.AccountsOverdue {
		add(-5, "Accounts overdue")
	}
	if r.ConfirmationOverdue {
		add(-3, "Confirmation statement overdue")
	}

	if r.ChargeCount > 0 {
		add(10, "Has %d charges", r.ChargeCount)
		if r.OutstandingCharges > 0 {
			add(5, "%d charges outstanding", r.OutstandingCharges)
		}
	}

	if sic, ok := assetRichSIC(r.SICCodes); ok {
		add(10, "SIC code %s suggests an asset-rich sector", sic)
	}

	if r.CompanyType == "plc" {
		add(5, "Public limited company")
	}
	if r.RecentActivity {
		add(5, "Recent filing activity")
	}
}

func assetRichSIC(codes []string) (string, bool) {
	for _, code := range codes {
		code = strings.TrimSpace(code)
		for _, prefix := range assetRichSICPrefixes {
			if strings.HasPrefix(code, prefix) {
				return code, true
			}
		}
	}
	return "", false
}

// CategoryFor buckets a score: HIGH ≥65, MEDIUM 40–64, LOW 20–39, SKIP below.
func CategoryFor(score int) model.Category {
	switch {
	case score >= HighThreshold:
		return model.CategoryHigh
	case score >= MediumThreshold:
		return model.CategoryMedium
	case score >= LowThreshold:
		return model.CategoryLow
	default:
		return model.CategorySkip
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
