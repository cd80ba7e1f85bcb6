// Package registry looks companies up on the Companies House API and
// enriches notices with what it finds.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gazette_outreach/internal/model"
)

// ErrUnavailable is returned when the registry could not answer: rate
// limiting, server errors or network failures. The lookup is worth
// retrying later.
var ErrUnavailable = errors.New("registry unavailable")

var errNotFound = errors.New("not found")

const (
	maxBody        = 2 * 1024 * 1024
	recentActivity = 730 * 24 * time.Hour
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Companies House public data API.
type Client struct {
	client HTTPClient
	base   string
	apiKey string
	log    *slog.Logger
	now    func() time.Time
}

// NewClient creates a registry client.
func NewClient(client HTTPClient, base, apiKey string, log *slog.Logger) *Client {
	return &Client{
		client: client,
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		log:    log,
		now:    time.Now,
	}
}

type companyProfile struct {
	CompanyNumber string   `json:"company_number"`
	CompanyStatus string   `json:"company_status"`
	Type          string   `json:"type"`
	SICCodes      []string `json:"sic_codes"`
	HasCharges    bool     `json:"has_charges"`
	Accounts      struct {
		Overdue      bool `json:"overdue"`
		LastAccounts struct {
			MadeUpTo string `json:"made_up_to"`
			Type     string `json:"type"`
		} `json:"last_accounts"`
	} `json:"accounts"`
	ConfirmationStatement struct {
		Overdue bool `json:"overdue"`
	} `json:"confirmation_statement"`
}

type chargeList struct {
	TotalCount int `json:"total_count"`
	Items      []struct {
		Status string `json:"status"`
	} `json:"items"`
}

type officerList struct {
	Items []struct {
		Name       string `json:"name"`
		ResignedOn string `json:"resigned_on"`
	} `json:"items"`
}

type filingList struct {
	TotalCount int `json:"total_count"`
}

type searchResult struct {
	Items []struct {
		Title         string `json:"title"`
		CompanyNumber string `json:"company_number"`
	} `json:"items"`
}

// Normalize upper-cases a company number and zero-pads numeric numbers to
// eight digits.
func Normalize(number string) string {
	n := strings.ToUpper(strings.TrimSpace(number))
	if n == "" || strings.Trim(n, "0123456789") != "" || len(n) >= 8 {
		return n
	}
	return strings.Repeat("0", 8-len(n)) + n
}

// Lookup returns the registry profile of a company. A company the registry
// does not know comes back with Found false and no error.
func (c *Client) Lookup(ctx context.Context, number string) (model.RegistryData, error) {
	num := Normalize(number)
	if num == "" {
		return model.RegistryData{}, nil
	}

	var p companyProfile
	err := c.get(ctx, "/company/"+url.PathEscape(num), nil, &p)
	if errors.Is(err, errNotFound) {
		c.log.Debug("company not on the register", "company_number", num)
		return model.RegistryData{}, nil
	}
	if err != nil {
		return model.RegistryData{}, err
	}

	data := model.RegistryData{
		Found:               true,
		Status:              model.RegistryStatus(p.CompanyStatus),
		CompanyType:         p.Type,
		SICCodes:            p.SICCodes,
		AccountsType:        p.Accounts.LastAccounts.Type,
		AccountsOverdue:     p.Accounts.Overdue,
		ConfirmationOverdue: p.ConfirmationStatement.Overdue,
	}
	if made, err := time.Parse("2006-01-02", p.Accounts.LastAccounts.MadeUpTo); err == nil {
		data.RecentActivity = c.now().Sub(made) < recentActivity
	}
	data.HasAccountsFilings = data.AccountsType != ""

	var filings filingList
	q := url.Values{"category": {"accounts"}, "items_per_page": {"1"}}
	if err := c.get(ctx, "/company/"+url.PathEscape(num)+"/filing-history", q, &filings); err == nil {
		data.HasAccountsFilings = data.HasAccountsFilings || filings.TotalCount > 0
	} else if !errors.Is(err, errNotFound) {
		return model.RegistryData{}, fmt.Errorf("filing history: %w", err)
	}

	if p.HasCharges {
		var charges chargeList
		q := url.Values{"items_per_page": {"25"}}
		if err := c.get(ctx, "/company/"+url.PathEscape(num)+"/charges", q, &charges); err == nil {
			data.ChargeCount = charges.TotalCount
			for _, ch := range charges.Items {
				if ch.Status == "outstanding" || ch.Status == "part-satisfied" {
					data.OutstandingCharges++
				}
			}
		} else if !errors.Is(err, errNotFound) {
			return model.RegistryData{}, fmt.Errorf("charges: %w", err)
		}
	}

	var officers officerList
	if err := c.get(ctx, "/company/"+url.PathEscape(num)+"/officers", nil, &officers); err == nil {
		for _, o := range officers.Items {
			if o.ResignedOn == "" {
				data.OfficerCount++
			}
		}
	} else if !errors.Is(err, errNotFound) {
		return model.RegistryData{}, fmt.Errorf("officers: %w", err)
	}

	return data, nil
}

// CompanyStatus returns the current status of a company, or an empty status
// when the registry does not know it.
func (c *Client) CompanyStatus(ctx context.Context, number string) (model.RegistryStatus, error) {
	num := Normalize(number)
	if num == "" {
		return "", nil
	}
	var p companyProfile
	err := c.get(ctx, "/company/"+url.PathEscape(num), nil, &p)
	if errors.Is(err, errNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return model.RegistryStatus(p.CompanyStatus), nil
}

// Search finds the company number for a company name. The first result is
// accepted only when its name matches exactly or shares most of the words.
func (c *Client) Search(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	var res searchResult
	q := url.Values{"q": {name}, "items_per_page": {"5"}}
	err := c.get(ctx, "/search/companies", q, &res)
	if errors.Is(err, errNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	want := strings.ToUpper(name)
	for _, it := range res.Items {
		if strings.ToUpper(strings.TrimSpace(it.Title)) == want {
			return it.CompanyNumber, nil
		}
	}
	if len(res.Items) > 0 && closeMatch(want, strings.ToUpper(res.Items[0].Title)) {
		return res.Items[0].CompanyNumber, nil
	}
	c.log.Debug("no close registry match", "company_name", name)
	return "", nil
}

// closeMatch reports whether at least 60% of the words in a also appear in b.
func closeMatch(a, b string) bool {
	norm := func(s string) map[string]bool {
		words := make(map[string]bool)
		for _, w := range strings.Fields(strings.ReplaceAll(s, "LIMITED", "LTD")) {
			words[w] = true
		}
		return words
	}
	wa, wb := norm(a), norm(b)
	if len(wa) == 0 {
		return false
	}
	overlap := 0
	for w := range wa {
		if wb[w] {
			overlap++
		}
	}
	return float64(overlap) >= float64(len(wa))*0.6
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s returned status %d", ErrUnavailable, path, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
