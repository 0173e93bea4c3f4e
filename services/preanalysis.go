package services

import (
	"context"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	"leilao-insights/models"
	"leilao-insights/scraper"
	"leilao-insights/storage"
	"leilao-insights/utils"
)

const (
	msgPending      = "Análise iniciada em background"
	msgNotTrusted   = "Domínio não reconhecido como leiloeiro oficial. Solicite verificação manual."
	msgFraudulent   = "Domínio sinalizado como fraudulento. Solicite verificação manual."
	msgLockedByPeer = "Análise em andamento"
)

// Acquirer obtains usable listing markup.
type Acquirer interface {
	Acquire(ctx context.Context, target string) (scraper.Acquisition, error)
}

// RecordExtractor turns listing markup into a record. *portals.Registry
// implements it.
type RecordExtractor interface {
	Extract(html string, u *url.URL) (models.PropertyRecord, string, error)
	Portal(u *url.URL) string
}

// PreAnalysisConfig wires the orchestrator. Logs, Locker and Pool may be nil.
type PreAnalysisConfig struct {
	Trust      *TrustClassifier
	Acquirer   Acquirer
	Extractor  RecordExtractor
	Cache      storage.CacheStore
	Logs       storage.ExtractionRecorder
	Locker     storage.Locker
	Pool       *utils.WorkerPool
	Async      bool
	JobTimeout time.Duration
	Logger     *utils.Logger
}

// PreAnalysis is the pipeline entry point: trust check, cache lookup,
// extraction and merge-write for one listing URL.
type PreAnalysis struct {
	trust      *TrustClassifier
	acquirer   Acquirer
	extractor  RecordExtractor
	cache      storage.CacheStore
	logs       storage.ExtractionRecorder
	locker     storage.Locker
	pool       *utils.WorkerPool
	async      bool
	jobTimeout time.Duration
	logger     *utils.Logger

	queued *utils.URLSet
	flight singleflight.Group
}

func NewPreAnalysis(c PreAnalysisConfig) *PreAnalysis {
	if c.Pool == nil {
		c.Pool = utils.NewWorkerPool(1, 0)
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 90 * time.Second
	}
	return &PreAnalysis{
		trust:      c.Trust,
		acquirer:   c.Acquirer,
		extractor:  c.Extractor,
		cache:      c.Cache,
		logs:       c.Logs,
		locker:     c.Locker,
		pool:       c.Pool,
		async:      c.Async,
		jobTimeout: c.JobTimeout,
		logger:     c.Logger.With("pre-analysis"),
		queued:     utils.NewURLSet(),
	}
}

// GetOrExtract returns the pre-analysis for raw. Invalid URLs yield a
// *models.ValidationError and datastore failures a *models.PersistenceError;
// every other outcome is expressed in the record's status.
func (p *PreAnalysis) GetOrExtract(ctx context.Context, raw string, force bool) (*models.FrontendRecord, error) {
	key, u, err := utils.NormalizeRaw(raw)
	if err != nil {
		return nil, err
	}

	if verdict := p.trust.Classify(ctx, u); verdict != models.VerdictTrusted {
		return p.notValidated(key, verdict), nil
	}

	if force {
		p.logger.Info("forced refresh of %s", key)
		return p.extract(ctx, key, u, true)
	}

	entry, err := p.cache.Get(ctx, key)
	if err != nil {
		return nil, &models.PersistenceError{Op: "get", Err: err}
	}

	switch {
	case entry == nil:
		if err := p.cache.MarkPending(ctx, key); err != nil {
			return nil, &models.PersistenceError{Op: "mark pending", Err: err}
		}
		return p.schedule(ctx, key, u)
	case entry.Status == models.CachePending && p.queued.Contains(key):
		return p.pending(key, msgPending), nil
	case isComplete(entry.Record):
		p.logger.Debug("cache hit for %s", key)
		return p.fromEntry(key, entry, p.extractor.Portal(u), models.ViaStatic), nil
	default:
		p.logger.Info("cached record for %s is incomplete, re-extracting", key)
		return p.extract(ctx, key, u, false)
	}
}

// Purge drops the cache entry for raw.
func (p *PreAnalysis) Purge(ctx context.Context, raw string) (models.PurgeResult, error) {
	key, _, err := utils.NormalizeRaw(raw)
	if err != nil {
		return models.PurgeResult{}, err
	}
	found, err := p.cache.Purge(ctx, key)
	if err != nil {
		return models.PurgeResult{}, &models.PersistenceError{Op: "purge", Err: err}
	}
	p.logger.Info("purged %s (found=%v)", key, found)
	return models.PurgeResult{Found: found}, nil
}

// Wait blocks until background extractions and audit writes have finished.
func (p *PreAnalysis) Wait() {
	p.pool.Wait()
	p.trust.Wait()
}

func isComplete(r models.PropertyRecord) bool {
	for _, f := range models.RequiredFields {
		if !r.Has(f) {
			return false
		}
	}
	return true
}

// schedule submits the extraction job for a cache miss. In async mode the
// caller gets a pending record at once and a key already queued is not
// submitted twice.
func (p *PreAnalysis) schedule(ctx context.Context, key string, u *url.URL) (*models.FrontendRecord, error) {
	if p.async {
		if p.queued.Add(key) {
			p.logger.Debug("queued %s (%d extractions queued)", key, p.queued.Size())
			p.pool.Submit(func() {
				defer p.queued.Remove(key)
				if _, err := p.runJob(key, u); err != nil {
					p.logger.Error("background extraction of %s failed: %v", key, err)
				}
			})
		}
		return p.pending(key, msgPending), nil
	}

	var (
		rec    *models.FrontendRecord
		jobErr error
	)
	h := p.pool.Submit(func() { rec, jobErr = p.runJob(key, u) })
	if err := h.Wait(ctx); err != nil {
		return nil, err
	}
	return rec, jobErr
}

// runJob detaches from the request so that returning early never cancels
// an extraction in progress.
func (p *PreAnalysis) runJob(key string, u *url.URL) (*models.FrontendRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.jobTimeout)
	defer cancel()
	return p.extract(ctx, key, u, false)
}

// extract collapses concurrent extractions of the same key into one.
func (p *PreAnalysis) extract(ctx context.Context, key string, u *url.URL, force bool) (*models.FrontendRecord, error) {
	flightKey := key
	if force {
		flightKey = "force " + key
	}
	v, err, shared := p.flight.Do(flightKey, func() (any, error) {
		return p.extractOnce(ctx, key, u, force)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		p.logger.Debug("joined in-flight extraction of %s", key)
	}
	rec := *v.(*models.FrontendRecord)
	return &rec, nil
}

func (p *PreAnalysis) extractOnce(ctx context.Context, key string, u *url.URL, force bool) (*models.FrontendRecord, error) {
	if p.locker != nil {
		release, err := p.locker.TryLock(ctx, key)
		switch {
		case err != nil:
			p.logger.Warn("lock unavailable for %s, extracting anyway: %v", key, err)
		case release == nil:
			p.logger.Info("%s is being extracted by another worker", key)
			return p.pending(key, msgLockedByPeer), nil
		default:
			defer release()
		}
	}

	outcome := p.run(ctx, key, u)

	write := models.CacheWrite{
		Record:    outcome.Record,
		Supersede: force && outcome.Status.Complete(),
	}
	if outcome.Err != nil {
		write.Error = outcome.Err.Error()
	}
	entry, err := p.cache.Put(ctx, key, write)
	if err != nil {
		return nil, &models.PersistenceError{Op: "put", Err: err}
	}

	p.recordLog(ctx, outcome)
	return p.fromEntry(key, entry, outcome.Portal, outcome.FetchedVia), nil
}

// run performs acquisition, extraction and evaluation. Failures are carried
// in the outcome.
func (p *PreAnalysis) run(ctx context.Context, key string, u *url.URL) models.ExtractionOutcome {
	out := models.ExtractionOutcome{
		SourceURL:     key,
		Status:        models.StatusFailed,
		MissingFields: append([]models.FieldName(nil), models.RequiredFields...),
		Portal:        p.extractor.Portal(u),
	}

	start := time.Now()
	acq, err := p.acquirer.Acquire(ctx, u.String())
	if err != nil {
		p.logger.Warn("acquisition failed for %s: %v", key, err)
		out.Err = err
		return out
	}
	out.FetchedVia = acq.Via

	rec, portal, err := p.extractor.Extract(acq.HTML, u)
	if portal != "" {
		out.Portal = portal
	}
	if err != nil {
		p.logger.Warn("extraction failed for %s: %v", key, err)
		out.Err = err
		return out
	}

	out.Record = rec
	out.Status, out.MissingFields = Evaluate(rec, acq.Via)
	p.logger.Info("%s: %s via %s/%s in %s, missing %v",
		key, out.Status, out.Portal, out.FetchedVia, time.Since(start).Round(time.Millisecond), out.MissingFields)
	return out
}

func (p *PreAnalysis) recordLog(ctx context.Context, o models.ExtractionOutcome) {
	if p.logs == nil {
		return
	}
	l := models.ExtractionLog{
		URL:           o.SourceURL,
		Portal:        o.Portal,
		Status:        o.Status,
		MissingFields: o.MissingFields,
		Via:           o.FetchedVia,
	}
	if o.Err != nil {
		l.Error = o.Err.Error()
	}
	if err := p.logs.RecordExtraction(ctx, l); err != nil {
		p.logger.Warn("extraction log failed for %s: %v", o.SourceURL, err)
	}
}

// fromEntry shapes a cache entry for the listing page. The extraction
// status is that of the merged record, not of the last attempt.
func (p *PreAnalysis) fromEntry(key string, entry *models.CacheEntry, portal string, via models.FetchVia) *models.FrontendRecord {
	rec := models.NewFrontendRecord(key, entry.Record)
	rec.Portal = portal
	if via == "" {
		via = models.ViaStatic
	}
	rec.ExtractionStatus, rec.MissingFields = Evaluate(entry.Record, via)
	if soft := SoftMissing(entry.Record); soft != nil {
		rec.SoftMissingFields = soft
	}
	rec.Status = models.ResponseFailed
	if entry.Status == models.CacheCompleted {
		rec.Status = models.ResponseCompleted
	}
	rec.Message = entry.Error
	return rec
}

func (p *PreAnalysis) pending(key, msg string) *models.FrontendRecord {
	return &models.FrontendRecord{
		URL:               key,
		Status:            models.ResponsePending,
		MissingFields:     []models.FieldName{},
		SoftMissingFields: []models.FieldName{},
		Message:           msg,
	}
}

func (p *PreAnalysis) notValidated(key string, verdict models.DomainVerdict) *models.FrontendRecord {
	msg := msgNotTrusted
	if verdict == models.VerdictFraudulent {
		msg = msgFraudulent
	}
	return &models.FrontendRecord{
		URL:               key,
		Status:            models.ResponseNotValidated,
		MissingFields:     []models.FieldName{},
		SoftMissingFields: []models.FieldName{},
		Message:           msg,
		Contact:           p.trust.Contact(),
	}
}
