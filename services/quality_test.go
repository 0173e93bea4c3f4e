package services

import (
	"reflect"
	"testing"

	"leilao-insights/models"
)

func TestEvaluate(t *testing.T) {
	full := models.PropertyRecord{Title: "Casa", MinimumBid: 1, PropertyType: "Casa"}
	tests := []struct {
		name    string
		record  models.PropertyRecord
		via     models.FetchVia
		status  models.ExtractionStatus
		missing []models.FieldName
	}{
		{"complete static", full, models.ViaStatic, models.StatusSuccess, []models.FieldName{}},
		{"complete rendered", full, models.ViaRendered, models.StatusFallbackUsed, []models.FieldName{}},
		{"missing type", models.PropertyRecord{Title: "Casa", MinimumBid: 10}, models.ViaStatic,
			models.StatusPartial, []models.FieldName{models.FieldPropertyType}},
		{"missing title and bid", models.PropertyRecord{PropertyType: "Casa", Images: []string{"x"}}, models.ViaRendered,
			models.StatusPartial, []models.FieldName{models.FieldTitle, models.FieldMinBid}},
		{"only soft fields", models.PropertyRecord{Images: []string{"x"}, City: "Santos"}, models.ViaStatic,
			models.StatusFailed, []models.FieldName{models.FieldTitle, models.FieldMinBid, models.FieldPropertyType}},
		{"empty", models.PropertyRecord{}, models.ViaRendered,
			models.StatusFailed, []models.FieldName{models.FieldTitle, models.FieldMinBid, models.FieldPropertyType}},
	}
	for _, tt := range tests {
		status, missing := Evaluate(tt.record, tt.via)
		if status != tt.status || !reflect.DeepEqual(missing, tt.missing) {
			t.Errorf("%s: Evaluate() = %s, %v; want %s, %v", tt.name, status, missing, tt.status, tt.missing)
		}
		again, _ := Evaluate(tt.record, tt.via)
		if again != status {
			t.Errorf("%s: Evaluate() not deterministic: %s then %s", tt.name, status, again)
		}
	}
}

func TestSoftMissing(t *testing.T) {
	if got := SoftMissing(models.PropertyRecord{}); !reflect.DeepEqual(got, []models.FieldName{models.FieldImages}) {
		t.Errorf("SoftMissing(empty) = %v; want [images]", got)
	}
	if got := SoftMissing(models.PropertyRecord{Images: []string{"a"}}); got != nil {
		t.Errorf("SoftMissing(with images) = %v; want nil", got)
	}
}
