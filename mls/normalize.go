package mls

import (
	"strings"
	"time"

	"mls_syncd/models"
)

// NormalizeListing maps a raw feed record into the canonical Listing
// shape. Returns nil when the record lacks its natural key or a status;
// absence is the only error signal, the caller counts and skips.
func NormalizeListing(raw *models.RawListing) *models.Listing {
	if strings.TrimSpace(raw.ListingKey) == "" {
		return nil
	}
	if strings.TrimSpace(raw.MlsStatus) == "" {
		return nil
	}

	listing := &models.Listing{
		ListingKey:   strings.TrimSpace(raw.ListingKey),
		ListAgentKey: strings.TrimSpace(raw.ListAgentKey),
		Status:       strings.TrimSpace(raw.MlsStatus),
		Address: models.Address{
			Street: joinStreet(raw.StreetNumberNumeric.String(), raw.StreetName),
			City:   strings.TrimSpace(raw.City),
			State:  strings.TrimSpace(raw.StateOrProvince),
			Zip:    strings.TrimSpace(raw.PostalCode),
		},
	}

	if raw.ListPrice != nil {
		price := *raw.ListPrice
		listing.ListPrice = &price
	}
	if ts := parseTimestamp(raw.ModificationTimestamp); ts != nil {
		listing.ModificationTimestamp = ts
	}

	return listing
}

// NormalizeAgent maps a raw roster record into the canonical Agent
// shape, or nil when the member key is missing.
func NormalizeAgent(raw *models.RawAgent) *models.Agent {
	if strings.TrimSpace(raw.MemberKey) == "" {
		return nil
	}

	agent := &models.Agent{
		MemberKey:  strings.TrimSpace(raw.MemberKey),
		FirstName:  strings.TrimSpace(raw.MemberFirstName),
		LastName:   strings.TrimSpace(raw.MemberLastName),
		FullName:   strings.TrimSpace(raw.MemberFullName),
		Email:      strings.TrimSpace(raw.MemberEmail),
		MlsID:      strings.TrimSpace(raw.MemberMlsID),
		OfficeName: strings.TrimSpace(raw.OfficeName),
		Phone:      strings.TrimSpace(raw.PreferredPhone),
	}

	if agent.FullName == "" {
		agent.FullName = strings.TrimSpace(agent.FirstName + " " + agent.LastName)
	}

	return agent
}

// joinStreet builds the street line from the house number and street
// name, trimmed and single-space joined.
func joinStreet(number, name string) string {
	parts := make([]string, 0, 2)
	if n := strings.TrimSpace(number); n != "" {
		parts = append(parts, n)
	}
	if n := strings.TrimSpace(name); n != "" {
		parts = append(parts, n)
	}
	return strings.Join(parts, " ")
}

func parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
