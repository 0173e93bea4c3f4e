package services

import "leilao-insights/models"

// Evaluate classifies an extracted record. missing lists the absent
// required fields in models.RequiredFields order; it is never nil.
func Evaluate(r models.PropertyRecord, via models.FetchVia) (models.ExtractionStatus, []models.FieldName) {
	missing := make([]models.FieldName, 0, len(models.RequiredFields))
	for _, f := range models.RequiredFields {
		if !r.Has(f) {
			missing = append(missing, f)
		}
	}

	switch {
	case len(missing) == 0 && via == models.ViaRendered:
		return models.StatusFallbackUsed, missing
	case len(missing) == 0:
		return models.StatusSuccess, missing
	case len(missing) == len(models.RequiredFields):
		return models.StatusFailed, missing
	default:
		return models.StatusPartial, missing
	}
}

// SoftMissing lists fields the listing page wants but that do not gate the
// extraction status.
func SoftMissing(r models.PropertyRecord) []models.FieldName {
	if r.Has(models.FieldImages) {
		return nil
	}
	return []models.FieldName{models.FieldImages}
}
