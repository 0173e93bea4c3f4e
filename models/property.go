package models

import "time"

// DefaultAuctionType is the label used when a portal does not say which
// kind of auction a listing belongs to.
const DefaultAuctionType = "Leilão"

// AuctionEvent is one round of an auction (1º leilão, 2º leilão...).
type AuctionEvent struct {
	Date  string  `json:"date" bson:"date"`
	Value float64 `json:"value" bson:"value"`
}

// PropertyRecord holds the attributes extracted from a listing page.
// Every field is optional; numeric zero means the value was not found.
type PropertyRecord struct {
	Title          string         `json:"title,omitempty" bson:"title,omitempty"`
	MinimumBid     float64        `json:"minimumBid,omitempty" bson:"minimum_bid,omitempty"`
	PropertyType   string         `json:"propertyType,omitempty" bson:"property_type,omitempty"`
	Address        string         `json:"address,omitempty" bson:"address,omitempty"`
	City           string         `json:"city,omitempty" bson:"city,omitempty"`
	State          string         `json:"state,omitempty" bson:"state,omitempty"`
	EvaluatedValue float64        `json:"evaluatedValue,omitempty" bson:"evaluated_value,omitempty"`
	AuctionDate    string         `json:"auctionDate,omitempty" bson:"auction_date,omitempty"`
	Images         []string       `json:"images,omitempty" bson:"images,omitempty"`
	Documents      []string       `json:"documents,omitempty" bson:"documents,omitempty"`
	Description    string         `json:"description,omitempty" bson:"description,omitempty"`
	AuctionType    string         `json:"auctionType,omitempty" bson:"auction_type,omitempty"`
	AuctionHistory []AuctionEvent `json:"auctionHistory,omitempty" bson:"auction_history,omitempty"`
}

// IsEmpty reports whether no attribute at all was extracted. AuctionType is
// ignored because extractors fill it with a default label.
func (r PropertyRecord) IsEmpty() bool {
	return r.Title == "" &&
		r.MinimumBid == 0 &&
		r.PropertyType == "" &&
		r.Address == "" &&
		r.City == "" &&
		r.State == "" &&
		r.EvaluatedValue == 0 &&
		r.AuctionDate == "" &&
		len(r.Images) == 0 &&
		len(r.Documents) == 0 &&
		r.Description == "" &&
		len(r.AuctionHistory) == 0
}

// FieldName identifies a record attribute in missing-field reports.
type FieldName string

const (
	FieldTitle        FieldName = "title"
	FieldMinBid       FieldName = "minBid"
	FieldPropertyType FieldName = "propertyType"
	FieldImages       FieldName = "images"
)

// RequiredFields is the fixed order in which missing required fields are reported.
var RequiredFields = []FieldName{FieldTitle, FieldMinBid, FieldPropertyType}

// Has reports whether the record carries a value for the given field.
func (r PropertyRecord) Has(f FieldName) bool {
	switch f {
	case FieldTitle:
		return r.Title != ""
	case FieldMinBid:
		return r.MinimumBid > 0
	case FieldPropertyType:
		return r.PropertyType != ""
	case FieldImages:
		return len(r.Images) > 0
	}
	return false
}

// FetchVia tells which acquisition path produced the markup.
type FetchVia string

const (
	ViaStatic   FetchVia = "static"
	ViaRendered FetchVia = "rendered"
)

// ExtractionStatus classifies the quality of one extraction attempt.
type ExtractionStatus string

const (
	StatusSuccess      ExtractionStatus = "success"
	StatusFallbackUsed ExtractionStatus = "fallback_used"
	StatusPartial      ExtractionStatus = "partial"
	StatusFailed       ExtractionStatus = "failed"
)

// Complete reports whether the status means every required field is present.
func (s ExtractionStatus) Complete() bool {
	return s == StatusSuccess || s == StatusFallbackUsed
}

// ExtractionOutcome is the result of running one listing through
// acquisition, extraction and evaluation.
type ExtractionOutcome struct {
	Record        PropertyRecord
	Status        ExtractionStatus
	MissingFields []FieldName
	SourceURL     string
	FetchedVia    FetchVia
	Portal        string
	Err           error
}

// CacheStatus is the lifecycle state of a cache entry.
type CacheStatus string

const (
	CachePending   CacheStatus = "pending"
	CacheCompleted CacheStatus = "completed"
	CacheError     CacheStatus = "error"
)

// CacheEntry is the persisted extraction result for one normalized URL.
type CacheEntry struct {
	Key       string         `json:"key" bson:"key"`
	Status    CacheStatus    `json:"status" bson:"status"`
	Record    PropertyRecord `json:"record" bson:"record"`
	Error     string         `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt time.Time      `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time      `json:"updatedAt" bson:"updated_at"`
}

// CacheWrite is one write request against the result cache.
//
// Supersede replaces the stored record instead of merging into it; it is
// only set by a forced refresh that produced a complete record.
type CacheWrite struct {
	Record    PropertyRecord
	Error     string
	Supersede bool
}
