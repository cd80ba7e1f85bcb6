// Package gazette downloads insolvency notices from the Gazette Atom feed
// and turns them into notices.
package gazette

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"gazette_outreach/internal/model"
)

// Corporate insolvency notices.
const categoryCode = "24"

const (
	defaultPageSize = 100
	maxPages        = 10
	maxBody         = 5 * 1024 * 1024
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Feed reads notices from the Gazette feed.
type Feed struct {
	client   HTTPClient
	base     string
	log      *slog.Logger
	pageSize int
}

// New creates a Feed for the given feed base URL.
func New(client HTTPClient, base string, log *slog.Logger) *Feed {
	return &Feed{
		client:   client,
		base:     strings.TrimRight(base, "/"),
		log:      log,
		pageSize: defaultPageSize,
	}
}

// FetchNotices returns the insolvency notices published since the given
// date, newest first. Entries that are not a supported notice type are
// skipped.
func (f *Feed) FetchNotices(ctx context.Context, since time.Time) ([]model.Notice, error) {
	var notices []model.Notice
	for page := 1; page <= maxPages; page++ {
		feed, err := f.fetchPage(ctx, since, page)
		if err != nil {
			return notices, fmt.Errorf("page %d: %w", page, err)
		}

		for _, item := range feed.Items {
			n, ok := ParseEntry(item)
			if !ok {
				f.log.Debug("notice skipped", "entry_id", item.GUID, "title", item.Title, "categories", item.Categories)
				continue
			}
			notices = append(notices, n)
		}
		if len(feed.Items) < f.pageSize {
			break
		}
	}
	f.log.Info("notices fetched", "since", since.Format("2006-01-02"), "count", len(notices))
	return notices, nil
}

func (f *Feed) pageURL(since time.Time, page int) string {
	q := url.Values{}
	q.Set("categorycode", categoryCode)
	q.Set("start-publish-date", since.Format("2006-01-02"))
	q.Set("sort-by", "latest-date")
	q.Set("results-page-size", strconv.Itoa(f.pageSize))
	q.Set("results-page", strconv.Itoa(page))
	return f.base + "/data.feed?" + q.Encode()
}

func (f *Feed) fetchPage(ctx context.Context, since time.Time, page int) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.pageURL(since, page), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "GazetteOutreach/1.0")
	req.Header.Set("Accept", "application/atom+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// EntryID returns the notice ID of a feed entry: the last path segment of
// its id. Entries without an id get a hash of title and link.
func EntryID(item *gofeed.Item) string {
	if id := strings.TrimSpace(item.GUID); id != "" {
		if u, err := url.Parse(id); err == nil && u.Path != "" {
			return path.Base(strings.TrimRight(u.Path, "/"))
		}
		return id
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}
