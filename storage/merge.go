package storage

import (
	"time"

	"github.com/google/uuid"

	"leilao-insights/models"
)

// MergeRecords overlays incoming onto base. Non-empty incoming fields win;
// empty ones never erase what base already holds.
func MergeRecords(base, incoming models.PropertyRecord) models.PropertyRecord {
	out := base
	mergeString(&out.Title, incoming.Title)
	mergeFloat(&out.MinimumBid, incoming.MinimumBid)
	mergeString(&out.PropertyType, incoming.PropertyType)
	mergeString(&out.Address, incoming.Address)
	mergeString(&out.City, incoming.City)
	mergeString(&out.State, incoming.State)
	mergeFloat(&out.EvaluatedValue, incoming.EvaluatedValue)
	mergeString(&out.AuctionDate, incoming.AuctionDate)
	mergeString(&out.Description, incoming.Description)
	if len(incoming.Images) > 0 {
		out.Images = incoming.Images
	}
	if len(incoming.Documents) > 0 {
		out.Documents = incoming.Documents
	}
	if len(incoming.AuctionHistory) > 0 {
		out.AuctionHistory = incoming.AuctionHistory
	}
	// the default label must not hide a specific one found earlier
	if incoming.AuctionType != "" &&
		(incoming.AuctionType != models.DefaultAuctionType || out.AuctionType == "") {
		out.AuctionType = incoming.AuctionType
	}
	return out
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeFloat(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}

// applyWrite computes the entry stored after w lands on existing (nil when
// the key is new). Every backend goes through it.
func applyWrite(existing *models.CacheEntry, key string, w models.CacheWrite, now time.Time) models.CacheEntry {
	entry := models.CacheEntry{Key: key, CreatedAt: now}
	if existing != nil {
		entry.CreatedAt = existing.CreatedAt
	}

	if existing == nil || w.Supersede {
		entry.Record = w.Record
	} else {
		entry.Record = MergeRecords(existing.Record, w.Record)
	}

	if entry.Record.IsEmpty() {
		entry.Status = models.CacheError
		entry.Error = w.Error
		if entry.Error == "" {
			entry.Error = "no attributes extracted"
		}
	} else {
		entry.Status = models.CacheCompleted
		entry.Error = w.Error
	}
	entry.UpdatedAt = now
	return entry
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
