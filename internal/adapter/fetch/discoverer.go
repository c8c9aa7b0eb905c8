package fetch

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cwygoda/papers/internal/domain"
)

// linkSelector matches anchors nested under paragraphs; anchors elsewhere
// on the index page are navigation, not papers.
const linkSelector = "p a"

// Discoverer extracts document links from index pages.
type Discoverer struct {
	client *Client
}

// NewDiscoverer creates a Discoverer sharing client.
func NewDiscoverer(client *Client) *Discoverer {
	return &Discoverer{client: client}
}

// Discover fetches indexURL and returns the absolute URLs of documents whose
// file name starts with prefix, deduplicated, in page order.
func (d *Discoverer) Discover(ctx context.Context, indexURL, prefix string) ([]string, error) {
	base, err := url.Parse(indexURL)
	if err != nil {
		return nil, &domain.FetchError{URL: indexURL, Err: err}
	}

	resp, err := d.client.Get(ctx, indexURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &domain.FetchError{URL: indexURL, Err: fmt.Errorf("read page: %w", err)}
	}

	var (
		links   []string
		seen    = make(map[string]struct{})
		pageErr error
	)
	doc.Find(linkSelector).EachWithBreak(func(i int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok {
			pageErr = &domain.MalformedPageError{
				URL:    indexURL,
				Reason: fmt.Sprintf("anchor %d (%q) has no href", i, strings.TrimSpace(a.Text())),
			}
			return false
		}

		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			pageErr = &domain.MalformedPageError{URL: indexURL, Reason: fmt.Sprintf("bad href %q: %v", href, err)}
			return false
		}
		if !strings.HasPrefix(path.Base(ref.Path), prefix) {
			return true
		}

		abs := base.ResolveReference(ref).String()
		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
		return true
	})
	if pageErr != nil {
		return nil, pageErr
	}
	return links, nil
}
