package models

import "encoding/json"

// RawListing is one Property record as the RESO OData feed returns it.
// Fields are optional on the wire; the normalizer validates them
// field-by-field instead of trusting shape at point of use.
type RawListing struct {
	ListingKey            string      `json:"ListingKey"`
	ListPrice             *float64    `json:"ListPrice"`
	ListAgentKey          string      `json:"ListAgentKey"`
	StreetNumberNumeric   json.Number `json:"StreetNumberNumeric"`
	StreetName            string      `json:"StreetName"`
	City                  string      `json:"City"`
	StateOrProvince       string      `json:"StateOrProvince"`
	PostalCode            string      `json:"PostalCode"`
	MlsStatus             string      `json:"MlsStatus"`
	ModificationTimestamp string      `json:"ModificationTimestamp"`
}

// RawAgent is one ActiveAgents record as received.
type RawAgent struct {
	MemberKey             string `json:"MemberKey"`
	MemberFirstName       string `json:"MemberFirstName"`
	MemberLastName        string `json:"MemberLastName"`
	MemberFullName        string `json:"MemberFullName"`
	MemberEmail           string `json:"MemberEmail"`
	MemberMlsID           string `json:"MemberMlsId"`
	OfficeName            string `json:"OfficeName"`
	PreferredPhone        string `json:"PreferredPhone"`
	ModificationTimestamp string `json:"ModificationTimestamp"`
}
