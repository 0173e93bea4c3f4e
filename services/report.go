package services

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"leilao-insights/models"
	"leilao-insights/storage"
	"leilao-insights/utils"
)

const (
	reportLatestLogs = 10
	debugLogLimit    = 50
)

// ReportService summarizes extraction logs.
type ReportService struct {
	store  storage.DiagnosticsStore
	logger *utils.Logger
}

func NewReportService(store storage.DiagnosticsStore, logger *utils.Logger) *ReportService {
	return &ReportService{store: store, logger: logger.With("report")}
}

// Report counts every logged attempt by portal and by status and keeps the
// most recent ones.
func (s *ReportService) Report(ctx context.Context) (*models.ExtractionReport, error) {
	logs, err := s.store.ListExtractions(ctx, models.ExtractionLogFilter{})
	if err != nil {
		return nil, fmt.Errorf("report: list extractions: %w", err)
	}
	return Summarize(logs), nil
}

// DebugLogs returns the latest extraction logs, optionally for one portal.
func (s *ReportService) DebugLogs(ctx context.Context, portal string) ([]models.ExtractionLog, error) {
	logs, err := s.store.ListExtractions(ctx, models.ExtractionLogFilter{Portal: portal, Limit: debugLogLimit})
	if err != nil {
		return nil, fmt.Errorf("report: debug logs: %w", err)
	}
	if logs == nil {
		logs = []models.ExtractionLog{}
	}
	return logs, nil
}

// Summarize aggregates logs given newest first.
func Summarize(logs []models.ExtractionLog) *models.ExtractionReport {
	report := &models.ExtractionReport{
		Total:      len(logs),
		ByPortal:   make(map[string]int),
		ByStatus:   make(map[models.ExtractionStatus]int),
		LatestLogs: []models.ExtractionLog{},
	}
	for _, l := range logs {
		portal := l.Portal
		if portal == "" {
			portal = "unknown"
		}
		report.ByPortal[portal]++
		report.ByStatus[l.Status]++
	}
	if len(logs) > reportLatestLogs {
		logs = logs[:reportLatestLogs]
	}
	report.LatestLogs = append(report.LatestLogs, logs...)
	return report
}

// Print writes the report as a coloured terminal table.
func (s *ReportService) Print(w io.Writer, r *models.ExtractionReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 EXTRACTION REPORT\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Extraction attempts : \033[1m%d\033[0m\n", r.Total)
	if r.Total > 0 {
		ok := r.ByStatus[models.StatusSuccess] + r.ByStatus[models.StatusFallbackUsed]
		fmt.Fprintf(w, "  Complete records    : \033[1;32m%d (%.1f%%)\033[0m\n", ok, round2(100*float64(ok)/float64(r.Total)))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  By Status\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	for _, st := range []models.ExtractionStatus{models.StatusSuccess, models.StatusFallbackUsed, models.StatusPartial, models.StatusFailed} {
		fmt.Fprintf(w, "  %-16s %s (%d)\n", st, strings.Repeat("█", min(r.ByStatus[st], 30)), r.ByStatus[st])
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  By Portal\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.ByPortal) == 0 {
		fmt.Fprintf(w, "  No extractions logged\n")
	} else {
		type portalCount struct {
			portal string
			count  int
		}
		var counts []portalCount
		for p, c := range r.ByPortal {
			counts = append(counts, portalCount{p, c})
		}
		sort.Slice(counts, func(i, j int) bool {
			if counts[i].count != counts[j].count {
				return counts[i].count > counts[j].count
			}
			return counts[i].portal < counts[j].portal
		})
		for _, pc := range counts {
			fmt.Fprintf(w, "  %-16s %s (%d)\n", pc.portal, strings.Repeat("█", min(pc.count, 30)), pc.count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Latest Attempts\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	for i, l := range r.LatestLogs {
		fmt.Fprintf(w, "  \033[1m%2d.\033[0m %-13s %-8s %s\n", i+1, l.Status, l.Portal, truncate(l.URL, 60))
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

// truncate shortens s to at most max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
