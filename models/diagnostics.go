package models

import "time"

// DomainVerdict is the trust classification of a listing host.
type DomainVerdict string

const (
	VerdictTrusted    DomainVerdict = "trusted"
	VerdictFraudulent DomainVerdict = "fraudulent"
	VerdictUnknown    DomainVerdict = "unknown"
)

// DomainCheck is the audit record written for every trust classification.
type DomainCheck struct {
	ID        string        `json:"id" bson:"_id"`
	URL       string        `json:"url" bson:"url"`
	Host      string        `json:"host" bson:"host"`
	Verdict   DomainVerdict `json:"verdict" bson:"verdict"`
	CreatedAt time.Time     `json:"createdAt" bson:"created_at"`
}

// Snapshot is raw markup kept for debugging extractor regressions.
type Snapshot struct {
	ID         string    `json:"id" bson:"_id"`
	URL        string    `json:"url" bson:"url"`
	Host       string    `json:"host" bson:"host"`
	Origin     FetchVia  `json:"origin" bson:"origin"`
	HTML       string    `json:"html" bson:"html"`
	CapturedAt time.Time `json:"capturedAt" bson:"captured_at"`
}

// ExtractionLog records the evaluation of one extraction attempt.
type ExtractionLog struct {
	ID            string           `json:"id" bson:"_id"`
	URL           string           `json:"url" bson:"url"`
	Portal        string           `json:"portal" bson:"portal"`
	Status        ExtractionStatus `json:"status" bson:"status"`
	MissingFields []FieldName      `json:"missingFields,omitempty" bson:"missing_fields,omitempty"`
	Via           FetchVia         `json:"via,omitempty" bson:"via,omitempty"`
	Error         string           `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt     time.Time        `json:"createdAt" bson:"created_at"`
}

// ExtractionLogFilter narrows ListExtractions. Limit <= 0 returns everything.
type ExtractionLogFilter struct {
	Portal string
	Limit  int
}

// ExtractionReport aggregates extraction logs per portal and status.
type ExtractionReport struct {
	Total      int                      `json:"total"`
	ByPortal   map[string]int           `json:"byPortal"`
	ByStatus   map[ExtractionStatus]int `json:"byStatus"`
	LatestLogs []ExtractionLog          `json:"latestLogs"`
}
