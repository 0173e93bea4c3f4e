package services

import (
	"context"
	"net/url"
	"sync"
	"time"

	"leilao-insights/config"
	"leilao-insights/models"
	"leilao-insights/storage"
	"leilao-insights/utils"
)

const auditTimeout = 5 * time.Second

// TrustClassifier decides whether a listing host may be scraped.
type TrustClassifier struct {
	lists  *config.TrustLists
	audit  storage.DomainCheckRecorder
	logger *utils.Logger
	wg     sync.WaitGroup
}

// NewTrustClassifier returns a classifier over lists. audit may be nil.
func NewTrustClassifier(lists *config.TrustLists, audit storage.DomainCheckRecorder, logger *utils.Logger) *TrustClassifier {
	return &TrustClassifier{lists: lists, audit: audit, logger: logger.With("trust")}
}

// Classify checks the fraud list first, then the trusted list. Anything on
// neither is unknown. The audit record is written in the background and
// never affects the verdict.
func (c *TrustClassifier) Classify(ctx context.Context, u *url.URL) models.DomainVerdict {
	host := utils.HostOf(u)

	verdict := models.VerdictUnknown
	switch {
	case c.lists.IsFraudulent(host):
		verdict = models.VerdictFraudulent
	case c.lists.IsTrusted(host):
		verdict = models.VerdictTrusted
	}

	if verdict != models.VerdictTrusted {
		c.logger.Warn("%s host %s rejected (%s)", verdict, host, u)
	}
	c.record(ctx, models.DomainCheck{URL: u.String(), Host: host, Verdict: verdict})
	return verdict
}

// Contact is the manual-verification channel offered for rejected hosts.
func (c *TrustClassifier) Contact() string {
	return c.lists.Contact()
}

// Wait blocks until in-flight audit writes have finished.
func (c *TrustClassifier) Wait() {
	c.wg.Wait()
}

func (c *TrustClassifier) record(ctx context.Context, check models.DomainCheck) {
	if c.audit == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
		defer cancel()
		if err := c.audit.RecordDomainCheck(actx, check); err != nil {
			c.logger.Warn("domain check audit failed for %s: %v", check.Host, err)
		}
	}()
}
