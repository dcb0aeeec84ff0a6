package services

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"mls_syncd/config"
	"mls_syncd/models"
)

// Notifier posts status-change events to the configured webhook.
// Strictly best-effort: failures are logged and counted, never raised,
// and a missing URL makes every call a silent no-op.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

func NewNotifier(cfg config.WebhookConfig, client *http.Client) *Notifier {
	return &Notifier{
		webhookURL: cfg.URL,
		client:     client,
	}
}

// Enabled reports whether a webhook endpoint is configured.
func (n *Notifier) Enabled() bool {
	return n.webhookURL != ""
}

type statusChangePayload struct {
	EventID        string         `json:"event_id"`
	ListingKey     string         `json:"listing_key"`
	Status         string         `json:"status"`
	PreviousStatus string         `json:"previous_status,omitempty"`
	ListPrice      *float64       `json:"list_price,omitempty"`
	Address        models.Address `json:"address"`
	ChangedAt      time.Time      `json:"changed_at"`
	Agent          *agentPayload  `json:"agent,omitempty"`
}

type agentPayload struct {
	MemberKey  string `json:"member_key"`
	FullName   string `json:"full_name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	OfficeName string `json:"office_name,omitempty"`
}

// NotifyStatusChange delivers one event for a listing whose status just
// changed. The agent may be nil when the listing has no known agent.
func (n *Notifier) NotifyStatusChange(ctx context.Context, listing *models.Listing, agent *models.Agent) {
	if n.webhookURL == "" {
		return
	}

	payload := statusChangePayload{
		EventID:    uuid.NewString(),
		ListingKey: listing.ListingKey,
		Status:     listing.Status,
		ListPrice:  listing.ListPrice,
		Address:    listing.Address,
		ChangedAt:  time.Now(),
	}
	if h := listing.StatusHistory; len(h) >= 2 {
		payload.PreviousStatus = h[len(h)-2].Status
		payload.ChangedAt = h[len(h)-1].Timestamp
	}
	if agent != nil {
		payload.Agent = &agentPayload{
			MemberKey:  agent.MemberKey,
			FullName:   agent.FullName,
			Email:      agent.Email,
			Phone:      agent.Phone,
			OfficeName: agent.OfficeName,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Warning: marshal webhook payload for %s: %v", listing.ListingKey, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, "POST", n.webhookURL, bytes.NewReader(body))
	if err != nil {
		log.Printf("Warning: build webhook request for %s: %v", listing.ListingKey, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("Warning: webhook delivery for %s: %v", listing.ListingKey, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("Warning: webhook for %s returned status %d", listing.ListingKey, resp.StatusCode)
		return
	}

	log.Printf("Notified webhook: listing %s now %s", listing.ListingKey, listing.Status)
}
