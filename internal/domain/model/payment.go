// Package model contains domain models passed between layers.
package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// PaymentType discriminates payment records.
type PaymentType string

// Known payment types.
const (
	PaymentUser PaymentType = "UserPayment"
	PaymentRepo PaymentType = "RepoFund"
)

// FlexString decodes from either a JSON string or a JSON number.
// The payments API is not consistent about ids and timestamps.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// String returns the raw value.
func (f FlexString) String() string { return string(f) }

// Amount is a currency value as returned by the payments API.
// Raw is an integer string in micro-units (1,000,000 = one dollar).
type Amount struct {
	Raw       FlexString `json:"raw"`
	Formatted string     `json:"formatted"`
}

// Balance is a sender's available balance.
type Balance = Amount

// PaymentRecord is a single sent payment. Records are read-only.
type PaymentRecord struct {
	Type        PaymentType `json:"type"`
	RecipientID FlexString  `json:"recipient_id,omitempty"`
	RepoID      FlexString  `json:"repo_id,omitempty"`
	Amount      Amount      `json:"amount"`
	Timestamp   FlexString  `json:"timestamp"`
	GroupID     string      `json:"group_id,omitempty"`
	TxHash      string      `json:"tx_hash"`
}

// IsRepo reports whether the record funds a repository.
func (r PaymentRecord) IsRepo() bool { return r.Type == PaymentRepo }

// SubjectID returns the GitHub id the record pays: the repo for repo funds,
// the recipient user otherwise.
func (r PaymentRecord) SubjectID() string {
	if r.IsRepo() {
		return r.RepoID.String()
	}
	return r.RecipientID.String()
}

// Unix returns the record timestamp in seconds, or 0 when it does not parse.
func (r PaymentRecord) Unix() int64 {
	ts, err := strconv.ParseInt(r.Timestamp.String(), 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// Time returns the record timestamp as a time.Time in UTC.
func (r PaymentRecord) Time() time.Time {
	return time.Unix(r.Unix(), 0).UTC()
}

// PageParams selects a page of sent payments. Page is 1-based.
type PageParams struct {
	Page     int
	PageSize int
}

// PaymentPage is one page of a sender's payments.
type PaymentPage struct {
	Items      []PaymentRecord `json:"items"`
	TotalCount int             `json:"total_count"`
	HasNext    bool            `json:"has_next"`
}
