package source

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/pders01/moji/internal/debuglog"
	"github.com/pders01/moji/internal/fault"
	"github.com/pders01/moji/internal/media"
	"github.com/pders01/moji/internal/validation"
)

// ContainerSource queries a container search API described by a Profile.
type ContainerSource struct {
	profile   Profile
	client    *http.Client
	extractor *Extractor
	log       *debuglog.FieldLogger
}

// ContainerOption configures a ContainerSource.
type ContainerOption func(*ContainerSource)

// WithBaseURL points the source at a different API endpoint.
func WithBaseURL(u string) ContainerOption {
	return func(s *ContainerSource) {
		if u != "" {
			s.profile.BaseURL = u
		}
	}
}

// WithWarmupURL overrides the page fetched to refresh session cookies.
func WithWarmupURL(u string) ContainerOption {
	return func(s *ContainerSource) {
		if u != "" {
			s.profile.WarmupURL = u
		}
	}
}

// WithLimits sets the declared-size limits applied during extraction.
func WithLimits(l media.Limits) ContainerOption {
	return func(s *ContainerSource) { s.extractor.Limits = l }
}

// WithValidator sets the validator applied to extracted URLs.
func WithValidator(v *validation.URLValidator) ContainerOption {
	return func(s *ContainerSource) { s.extractor.Validator = v }
}

// NewContainerSource builds a source from the embedded profile.
func NewContainerSource(client *http.Client, opts ...ContainerOption) (*ContainerSource, error) {
	profile, err := DefaultProfile()
	if err != nil {
		return nil, err
	}
	s := &ContainerSource{
		profile: profile,
		client:  client,
		extractor: &Extractor{
			CardType:  profile.CardType,
			Limits:    media.DefaultLimits,
			Validator: validation.NewURLValidator(),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = debuglog.WithFields(debuglog.Fields{"component": "source", "source": profile.Name})
	return s, nil
}

func (s *ContainerSource) Name() string { return s.profile.Name }

func (s *ContainerSource) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range s.profile.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// Query fetches one page. It makes exactly one request.
func (s *ContainerSource) Query(ctx context.Context, keyword string, page int) (*Response, error) {
	rawURL, err := s.profile.RequestURL(keyword, page)
	if err != nil {
		return nil, err
	}
	req, err := s.newRequest(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fault.Classify(err)
	}
	defer resp.Body.Close()

	if s.profile.throttleStatus(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &ThrottleError{Status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fault.HTTPStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.profile.MaxPayloadBytes))
	if err != nil {
		return nil, fault.Classify(fmt.Errorf("reading response: %w", err))
	}
	if !gjson.ValidBytes(body) {
		return nil, fault.New(fault.KindUnknown, "malformed search payload")
	}
	if ok := gjson.GetBytes(body, "ok"); !s.profile.okValue(ok.String()) {
		return nil, &ThrottleError{Reason: fmt.Sprintf("ok=%q", ok.Raw)}
	}

	urls, skipped := s.extractor.Extract(body)
	s.log.Debugf("page %d for %q: %d urls, %d oversized", page, keyword, len(urls), skipped)
	return &Response{
		Source:  s.profile.Name,
		Keyword: keyword,
		Page:    page,
		URLs:    urls,
		Skipped: skipped,
	}, nil
}

// WarmUp fetches the site root with the mobile headers so the next query
// carries fresh cookies. Failures are logged and returned but never fatal.
func (s *ContainerSource) WarmUp(ctx context.Context) error {
	if s.profile.WarmupURL == "" {
		return nil
	}
	req, err := s.newRequest(ctx, s.profile.WarmupURL)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warnf("warm-up failed: %v", err)
		return fault.Classify(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return nil
}
