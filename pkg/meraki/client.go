package meraki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gokaycavdar/go-nightguard/pkg/models"
	"github.com/gokaycavdar/go-nightguard/pkg/window"
)

const (
	DefaultBaseURL    = "https://api.meraki.com/api/v1"
	DefaultPerPage    = 1000
	DefaultMaxPages   = 500
	DefaultMaxRetries = 3
	DefaultTimeout    = 30 * time.Second

	// productType filter; only wireless events carry client associations.
	productWireless = "wireless"
)

// APIError is a non-2xx response from the dashboard API.
type APIError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("meraki: %s: HTTP %d: %s", e.Path, e.StatusCode, e.Body)
}

// Network, dashboard üzerindeki bir ağın özet bilgisidir.
type Network struct {
	ID             string   `json:"id"`
	OrganizationID string   `json:"organizationId"`
	Name           string   `json:"name"`
	ProductTypes   []string `json:"productTypes"`
	TimeZone       string   `json:"timeZone"`
}

// Organization is a dashboard organization.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type eventsPage struct {
	Message     string            `json:"message"`
	PageStartAt string            `json:"pageStartAt"`
	PageEndAt   string            `json:"pageEndAt"`
	Events      []models.RawEvent `json:"events"`
}

// Client, Meraki Dashboard API ile konuşan olay toplayıcıdır.
type Client struct {
	BaseURL    string
	APIKey     string
	PerPage    int
	MaxPages   int
	MaxRetries int
	HTTP       *http.Client
	Logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root (tests, proxies).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.BaseURL = strings.TrimRight(u, "/") }
}

// WithPerPage sets the page size of event requests.
func WithPerPage(n int) Option {
	return func(c *Client) { c.PerPage = n }
}

func WithMaxPages(n int) Option {
	return func(c *Client) { c.MaxPages = n }
}

func WithMaxRetries(n int) Option {
	return func(c *Client) { c.MaxRetries = n }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.HTTP = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.Logger = l }
}

// NewClient, API anahtarı ile yeni bir istemci oluşturur.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    DefaultBaseURL,
		APIKey:     apiKey,
		PerPage:    DefaultPerPage,
		MaxPages:   DefaultMaxPages,
		MaxRetries: DefaultMaxRetries,
		HTTP:       &http.Client{Timeout: DefaultTimeout},
		Logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Organizations lists the organizations the API key can access.
func (c *Client) Organizations(ctx context.Context) ([]Organization, error) {
	var orgs []Organization
	if err := c.getJSON(ctx, "/organizations", nil, &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

// OrganizationNetworks lists the networks of an organization.
func (c *Client) OrganizationNetworks(ctx context.Context, orgID string) ([]Network, error) {
	var nets []Network
	if err := c.getJSON(ctx, "/organizations/"+url.PathEscape(orgID)+"/networks", nil, &nets); err != nil {
		return nil, err
	}
	return nets, nil
}

// Network fetches a single network. It doubles as a connectivity check.
func (c *Client) Network(ctx context.Context, networkID string) (*Network, error) {
	var n Network
	if err := c.getJSON(ctx, "/networks/"+url.PathEscape(networkID), nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// RecentEvents returns up to n of the latest wireless events of a network.
func (c *Client) RecentEvents(ctx context.Context, networkID string, n int) ([]models.RawEvent, error) {
	q := url.Values{}
	q.Set("productType", productWireless)
	q.Set("perPage", strconv.Itoa(n))

	var page eventsPage
	if err := c.getJSON(ctx, eventsPath(networkID), q, &page); err != nil {
		return nil, err
	}
	return page.Events, nil
}

// NetworkEvents collects every wireless event of a network in [start, end).
//
// A bounded window (non-zero end) is paged backwards with endingBefore and
// each page is filtered to the window. A zero end pages forwards from start
// with startingAfter. Paging stops on an empty page, on a page shorter than
// PerPage, when the cursor stops moving, or after MaxPages pages.
//
// Events at page boundaries may be delivered twice; the normalizer
// collapses them.
func (c *Client) NetworkEvents(ctx context.Context, networkID string, start, end time.Time) ([]models.RawEvent, error) {
	bounded := !end.IsZero()
	cursor := start
	if bounded {
		cursor = end
	}

	all := make([]models.RawEvent, 0)
	pages := 0
	for pages < c.MaxPages {
		q := url.Values{}
		q.Set("productType", productWireless)
		q.Set("perPage", strconv.Itoa(c.PerPage))
		if bounded {
			q.Set("endingBefore", window.FormatFetch(cursor))
		} else {
			q.Set("startingAfter", window.FormatFetch(cursor))
		}

		var page eventsPage
		if err := c.getJSON(ctx, eventsPath(networkID), q, &page); err != nil {
			return nil, err
		}
		pages++

		raw := page.Events
		kept := raw
		if bounded {
			kept = filterWindow(raw, start, end)
		}
		if len(kept) == 0 {
			break
		}
		all = append(all, kept...)
		if len(kept) < c.PerPage {
			break
		}

		next, ok := nextCursor(raw, bounded)
		if !ok || next.Equal(cursor) {
			break
		}
		cursor = next
	}

	c.Logger.Debug("network events collected",
		"network_id", networkID,
		"start", window.FormatFetch(start),
		"end", formatEnd(end),
		"events", len(all),
		"pages", pages,
	)
	return all, nil
}

// filterWindow keeps the events with start <= occurredAt < end.
func filterWindow(events []models.RawEvent, start, end time.Time) []models.RawEvent {
	out := make([]models.RawEvent, 0, len(events))
	for _, ev := range events {
		at, err := window.ParseTimestamp(ev.OccurredAt)
		if err != nil {
			continue
		}
		if !at.Before(start) && at.Before(end) {
			out = append(out, ev)
		}
	}
	return out
}

// nextCursor is the oldest event when paging backwards and the newest when
// paging forwards.
func nextCursor(events []models.RawEvent, backwards bool) (time.Time, bool) {
	var cur time.Time
	found := false
	for _, ev := range events {
		at, err := window.ParseTimestamp(ev.OccurredAt)
		if err != nil {
			continue
		}
		if !found || (backwards && at.Before(cur)) || (!backwards && at.After(cur)) {
			cur = at
			found = true
		}
	}
	return cur, found
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("meraki: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return fmt.Errorf("meraki: GET %s: %w", path, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < c.MaxRetries {
			wait := retryAfter(resp.Header.Get("Retry-After"))
			drain(resp.Body)
			c.Logger.Warn("rate limited", "path", path, "retry_in", wait, "attempt", attempt+1)
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		return decode(resp, path, out)
	}
}

func decode(resp *http.Response, path string, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Path: path, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("meraki: decode %s: %w", path, err)
	}
	return nil
}

func retryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}

func eventsPath(networkID string) string {
	return "/networks/" + url.PathEscape(networkID) + "/events"
}

func formatEnd(end time.Time) string {
	if end.IsZero() {
		return "now"
	}
	return window.FormatFetch(end)
}
