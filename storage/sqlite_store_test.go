package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"leilao-insights/models"
)

const testKey = "https://www.megaleiloes.com.br/imoveis/x"

func TestSQLiteGetMissReturnsNil(t *testing.T) {
	s := OpenSQLiteMemory(t)
	e, err := s.Get(context.Background(), testKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e != nil {
		t.Errorf("Get on empty store = %+v; want nil", e)
	}
}

func TestSQLiteMarkPendingDoesNotTouchExisting(t *testing.T) {
	ctx := context.Background()
	s := OpenSQLiteMemory(t)

	if err := s.MarkPending(ctx, testKey); err != nil {
		t.Fatalf("MarkPending: %v", err)
	}
	e, _ := s.Get(ctx, testKey)
	if e == nil || e.Status != models.CachePending {
		t.Fatalf("entry after MarkPending = %+v; want pending", e)
	}

	if _, err := s.Put(ctx, testKey, models.CacheWrite{Record: models.PropertyRecord{Title: "Apto"}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.MarkPending(ctx, testKey); err != nil {
		t.Fatalf("second MarkPending: %v", err)
	}
	e, _ = s.Get(ctx, testKey)
	if e.Status != models.CacheCompleted || e.Record.Title != "Apto" {
		t.Errorf("MarkPending overwrote a completed entry: %+v", e)
	}
}

func TestSQLitePutMergesAcrossWrites(t *testing.T) {
	ctx := context.Background()
	s := OpenSQLiteMemory(t)

	first := models.PropertyRecord{Title: "Apartamento Teste", MinimumBid: 100000}
	second := models.PropertyRecord{PropertyType: "Apartamento", Images: []string{"https://img/1.jpg"}}

	if _, err := s.Put(ctx, testKey, models.CacheWrite{Record: first}); err != nil {
		t.Fatalf("Put first: %v", err)
	}
	stored, err := s.Put(ctx, testKey, models.CacheWrite{Record: second})
	if err != nil {
		t.Fatalf("Put second: %v", err)
	}

	e, err := s.Get(ctx, testKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for _, got := range []*models.CacheEntry{stored, e} {
		r := got.Record
		if r.Title != "Apartamento Teste" || r.MinimumBid != 100000 ||
			r.PropertyType != "Apartamento" || len(r.Images) != 1 {
			t.Errorf("merged record = %+v; want all four fields", r)
		}
		if got.Status != models.CacheCompleted {
			t.Errorf("status = %q; want completed", got.Status)
		}
	}
}

func TestSQLitePutEmptyRecordIsError(t *testing.T) {
	ctx := context.Background()
	s := OpenSQLiteMemory(t)

	e, err := s.Put(ctx, testKey, models.CacheWrite{Error: "acquisition failed"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if e.Status != models.CacheError || e.Error != "acquisition failed" {
		t.Errorf("entry = %+v; want error status with reason", e)
	}
}

func TestSQLiteSupersede(t *testing.T) {
	ctx := context.Background()
	s := OpenSQLiteMemory(t)

	old := models.PropertyRecord{Title: "Velho", MinimumBid: 1, PropertyType: "Casa", City: "Santos"}
	if _, err := s.Put(ctx, testKey, models.CacheWrite{Record: old}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	fresh := models.PropertyRecord{Title: "Novo", MinimumBid: 2, PropertyType: "Casa"}
	e, err := s.Put(ctx, testKey, models.CacheWrite{Record: fresh, Supersede: true})
	if err != nil {
		t.Fatalf("Put supersede: %v", err)
	}
	if e.Record.City != "" || e.Record.Title != "Novo" {
		t.Errorf("supersede kept old fields: %+v", e.Record)
	}
}

func TestSQLitePurge(t *testing.T) {
	ctx := context.Background()
	s := OpenSQLiteMemory(t)

	found, err := s.Purge(ctx, testKey)
	if err != nil || found {
		t.Fatalf("Purge on missing key = %v, %v; want false, nil", found, err)
	}
	if err := s.MarkPending(ctx, testKey); err != nil {
		t.Fatalf("MarkPending: %v", err)
	}
	found, err = s.Purge(ctx, testKey)
	if err != nil || !found {
		t.Fatalf("Purge = %v, %v; want true, nil", found, err)
	}
	if e, _ := s.Get(ctx, testKey); e != nil {
		t.Errorf("entry still present after purge: %+v", e)
	}
}

func TestSQLiteConcurrentPuts(t *testing.T) {
	ctx := context.Background()
	s := OpenSQLiteMemory(t)

	records := []models.PropertyRecord{
		{Title: "T"},
		{MinimumBid: 10},
		{PropertyType: "Casa"},
		{City: "Recife"},
	}
	var wg sync.WaitGroup
	for _, r := range records {
		wg.Add(1)
		go func(r models.PropertyRecord) {
			defer wg.Done()
			if _, err := s.Put(ctx, testKey, models.CacheWrite{Record: r}); err != nil {
				t.Errorf("Put: %v", err)
			}
		}(r)
	}
	wg.Wait()

	e, _ := s.Get(ctx, testKey)
	if e == nil {
		t.Fatal("no entry after concurrent puts")
	}
	r := e.Record
	if r.Title != "T" || r.MinimumBid != 10 || r.PropertyType != "Casa" || r.City != "Recife" {
		t.Errorf("concurrent merge lost fields: %+v", r)
	}
}

func TestSQLiteDiagnostics(t *testing.T) {
	ctx := context.Background()
	s := OpenSQLiteMemory(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := s.RecordDomainCheck(ctx, models.DomainCheck{URL: testKey, Host: "www.megaleiloes.com.br", Verdict: models.VerdictTrusted}); err != nil {
		t.Fatalf("RecordDomainCheck: %v", err)
	}
	if err := s.SaveSnapshot(ctx, models.Snapshot{URL: testKey, Origin: models.ViaStatic, HTML: "<html></html>"}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	for i, portal := range []string{"mega", "zuk", "mega"} {
		err := s.RecordExtraction(ctx, models.ExtractionLog{
			URL:       fmt.Sprintf("%s/%d", testKey, i),
			Portal:    portal,
			Status:    models.StatusPartial,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("RecordExtraction: %v", err)
		}
	}

	all, err := s.ListExtractions(ctx, models.ExtractionLogFilter{})
	if err != nil {
		t.Fatalf("ListExtractions: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(all) = %d; want 3 (domain checks and snapshots excluded)", len(all))
	}
	if all[0].URL != testKey+"/2" {
		t.Errorf("newest first: got %q", all[0].URL)
	}

	mega, err := s.ListExtractions(ctx, models.ExtractionLogFilter{Portal: "mega", Limit: 1})
	if err != nil {
		t.Fatalf("ListExtractions(mega): %v", err)
	}
	if len(mega) != 1 || mega[0].Portal != "mega" {
		t.Errorf("ListExtractions(mega, 1) = %+v", mega)
	}
}

func TestCSVWriterWriteLogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "logs.csv")
	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}
	err = w.WriteLogs([]models.ExtractionLog{{
		URL:           testKey,
		Portal:        "mega",
		Status:        models.StatusPartial,
		MissingFields: []models.FieldName{models.FieldMinBid, models.FieldPropertyType},
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}})
	if err != nil {
		t.Fatalf("WriteLogs: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d; want header + 1", len(rows))
	}
	if got := rows[1][4]; got != "minBid;propertyType" {
		t.Errorf("missing_fields column = %q; want %q", got, "minBid;propertyType")
	}
}
