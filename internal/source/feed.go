package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/pders01/moji/internal/debuglog"
	"github.com/pders01/moji/internal/fault"
	"github.com/pders01/moji/internal/media"
	"github.com/pders01/moji/internal/validation"
)

const feedUserAgent = "moji/1.0 (image search; github.com/pders01/moji)"

// FeedSource turns a keyword into an RSS/Atom feed URL and collects the images
// its items reference. Feeds are not paginated: pages after the first are empty.
type FeedSource struct {
	template  string
	client    *http.Client
	parser    *gofeed.Parser
	validator *validation.URLValidator
	log       *debuglog.FieldLogger
}

// NewFeedSource builds a feed source. template must contain {keyword}.
func NewFeedSource(template string, client *http.Client, v *validation.URLValidator) (*FeedSource, error) {
	if !strings.Contains(template, "{keyword}") {
		return nil, fmt.Errorf("feed url template %q has no {keyword}", template)
	}
	if v == nil {
		v = validation.NewURLValidator()
	}
	return &FeedSource{
		template:  template,
		client:    client,
		parser:    gofeed.NewParser(),
		validator: v,
		log:       debuglog.WithFields(debuglog.Fields{"component": "source", "source": "feed"}),
	}, nil
}

func (s *FeedSource) Name() string { return "feed" }

func (s *FeedSource) Query(ctx context.Context, keyword string, page int) (*Response, error) {
	out := &Response{Source: s.Name(), Keyword: keyword, Page: page}
	if page > 1 {
		return out, nil
	}

	feedURL := strings.ReplaceAll(s.template, "{keyword}", url.PathEscape(keyword))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", feedUserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fault.Classify(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &ThrottleError{Status: resp.StatusCode}
	case resp.StatusCode >= 400:
		return nil, fault.HTTPStatus(resp.StatusCode)
	}

	feed, err := s.parser.Parse(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fault.Wrap(fault.KindUnknown, "parsing feed", err)
	}

	seen := make(map[string]bool)
	for _, item := range feed.Items {
		for _, raw := range itemImages(item) {
			u, err := s.validator.ValidateAndNormalize(raw)
			if err != nil || seen[u] {
				continue
			}
			seen[u] = true
			out.URLs = append(out.URLs, u)
		}
	}
	s.log.Debugf("feed %s: %d items, %d images", feedURL, len(feed.Items), len(out.URLs))
	return out, nil
}

func itemImages(item *gofeed.Item) []string {
	var urls []string
	for _, enc := range item.Enclosures {
		if enc.URL != "" && (strings.HasPrefix(enc.Type, "image/") || media.FormatFromURL(enc.URL) != media.FormatUnknown) {
			urls = append(urls, enc.URL)
		}
	}
	if item.Image != nil && item.Image.URL != "" {
		urls = append(urls, item.Image.URL)
	}
	for _, name := range []string{"content", "thumbnail"} {
		for _, ext := range item.Extensions["media"][name] {
			if u := ext.Attrs["url"]; u != "" {
				urls = append(urls, u)
			}
		}
	}
	for _, body := range []string{item.Content, item.Description} {
		urls = append(urls, inlineImages(body)...)
	}
	return urls
}

// inlineImages returns the src of every <img> in an HTML fragment.
func inlineImages(fragment string) []string {
	if !strings.Contains(fragment, "<img") {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil
	}
	var urls []string
	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		if src, _ := sel.Attr("src"); isImagePath(src) {
			urls = append(urls, src)
		}
	})
	return urls
}

func isImagePath(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return path.Ext(u.Path) == "" || media.FormatFromURL(u.Path) != media.FormatUnknown
}
