package mls

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"mls_syncd/config"
	"mls_syncd/models"
)

const (
	FeedPendingListings = "pending_listings"
	FeedActiveAgents    = "active_agents"
)

// Client pulls paginated record collections from the RESO OData API.
// Each request is authorized through the CredentialBroker; each feed
// carries an explicit field selection and ordering so repeated pulls
// stay deterministic enough for idempotent reconciliation.
type Client struct {
	baseURL string
	broker  *CredentialBroker
	client  *http.Client
	feeds   map[string]*config.FeedConfig
}

func NewClient(cfg config.MLSConfig, feeds map[string]*config.FeedConfig, broker *CredentialBroker, client *http.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		broker:  broker,
		client:  client,
		feeds:   feeds,
	}
}

// FetchResult carries the decoded records plus the count of records the
// feed returned but could not be decoded at all.
type FetchResult[T any] struct {
	Records   []T
	Malformed int
}

// FetchPendingListings returns every listing currently in the qualifying
// status, across as many pages as the feed requires. A page failure
// aborts the whole fetch; no partial set is returned.
func (c *Client) FetchPendingListings(ctx context.Context) (*FetchResult[models.RawListing], error) {
	feed, err := c.feed(FeedPendingListings)
	if err != nil {
		return nil, err
	}

	values, err := c.fetchAllPages(ctx, feed)
	if err != nil {
		return nil, err
	}

	return decodeRecords[models.RawListing](values, feed.ID), nil
}

// FetchActiveAgents returns the full active agent roster.
func (c *Client) FetchActiveAgents(ctx context.Context) (*FetchResult[models.RawAgent], error) {
	feed, err := c.feed(FeedActiveAgents)
	if err != nil {
		return nil, err
	}

	values, err := c.fetchAllPages(ctx, feed)
	if err != nil {
		return nil, err
	}

	return decodeRecords[models.RawAgent](values, feed.ID), nil
}

func (c *Client) feed(id string) (*config.FeedConfig, error) {
	feed, ok := c.feeds[id]
	if !ok {
		return nil, &UpstreamError{Op: id, Err: fmt.Errorf("feed not configured")}
	}
	return feed, nil
}

type odataPage struct {
	Value []json.RawMessage `json:"value"`
}

func (c *Client) fetchAllPages(ctx context.Context, feed *config.FeedConfig) ([]json.RawMessage, error) {
	var all []json.RawMessage

	for skip := 0; ; skip += feed.PageSize {
		page, err := c.fetchPage(ctx, feed, skip)
		if err != nil {
			return nil, err
		}

		all = append(all, page.Value...)
		if len(page.Value) < feed.PageSize {
			break
		}
	}

	log.Printf("Feed %s: fetched %d records", feed.ID, len(all))
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, feed *config.FeedConfig, skip int) (*odataPage, error) {
	cred, err := c.broker.ValidCredential(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	if feed.Filter != "" {
		q.Set("$filter", feed.Filter)
	}
	if len(feed.Select) > 0 {
		q.Set("$select", strings.Join(feed.Select, ","))
	}
	if feed.OrderBy != "" {
		q.Set("$orderby", feed.OrderBy)
	}
	q.Set("$top", strconv.Itoa(feed.PageSize))
	if skip > 0 {
		q.Set("$skip", strconv.Itoa(skip))
	}
	if feed.Class != "" {
		q.Set("class", feed.Class)
	}

	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, feed.Resource, q.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, &UpstreamError{Op: feed.ID, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Op: feed.ID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &UpstreamError{Op: feed.ID, Status: resp.StatusCode, Body: string(body)}
	}

	var page odataPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, &UpstreamError{Op: feed.ID, Err: fmt.Errorf("decode page: %w", err)}
	}

	return &page, nil
}

// decodeRecords decodes page values one record at a time so a single
// undecodable record cannot sink the batch.
func decodeRecords[T any](values []json.RawMessage, feedID string) *FetchResult[T] {
	result := &FetchResult[T]{}
	for _, v := range values {
		var rec T
		if err := json.Unmarshal(v, &rec); err != nil {
			log.Printf("Warning: feed %s: skipping undecodable record: %v", feedID, err)
			result.Malformed++
			continue
		}
		result.Records = append(result.Records, rec)
	}
	return result
}
