package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gazette_outreach/internal/model"
)

// Lookuper fetches company profiles.
type Lookuper interface {
	Lookup(ctx context.Context, number string) (model.RegistryData, error)
	Search(ctx context.Context, name string) (string, error)
}

// WebsiteChecker reports whether a company has a live website.
type WebsiteChecker interface {
	CheckWebsite(ctx context.Context, companyName string) bool
}

// Enricher adds registry and website signals to notices. Either
// collaborator may be nil, in which case its signals stay empty.
type Enricher struct {
	registry Lookuper
	website  WebsiteChecker
	log      *slog.Logger
	now      func() time.Time
}

// NewEnricher creates an Enricher.
func NewEnricher(registry Lookuper, website WebsiteChecker, log *slog.Logger) *Enricher {
	return &Enricher{registry: registry, website: website, log: log, now: time.Now}
}

// Enrich looks the notice's company up and checks its website. A notice
// without a company number is matched by name. Registry errors are
// returned so the notice can be retried on the next run.
func (e *Enricher) Enrich(ctx context.Context, n model.Notice) (model.EnrichedNotice, error) {
	en := model.EnrichedNotice{Notice: n}

	if e.registry != nil {
		number := n.CompanyNumber
		if number == "" {
			found, err := e.registry.Search(ctx, n.CompanyName)
			if err != nil {
				return en, fmt.Errorf("search %q: %w", n.CompanyName, err)
			}
			if found != "" {
				e.log.Debug("company matched by name", "notice_id", n.ID, "company_number", found)
				en.CompanyNumber = Normalize(found)
				number = found
			}
		}
		if number != "" {
			data, err := e.registry.Lookup(ctx, number)
			if err != nil {
				return en, fmt.Errorf("lookup %s: %w", number, err)
			}
			en.Registry = data
		}
	}

	if e.website != nil && n.CompanyName != "" {
		en.WebsiteLive = e.website.CheckWebsite(ctx, n.CompanyName)
	}

	en.EnrichedAt = e.now().UTC()
	return en, nil
}
