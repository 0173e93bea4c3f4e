package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// TrustListFile is the on-disk shape of the trust list configuration.
type TrustListFile struct {
	Trusted                   []string `yaml:"trusted"`
	Fraudulent                []string `yaml:"fraudulent"`
	ManualVerificationContact string   `yaml:"manual_verification_contact"`
}

// TrustLists is the loaded, lookup-ready set of host lists. It can be
// reloaded in place while being read.
type TrustLists struct {
	path string

	mu         sync.RWMutex
	trusted    map[string]struct{}
	fraudulent map[string]struct{}
	contact    string
}

// LoadTrustLists reads and parses the YAML file at path.
func LoadTrustLists(path string) (*TrustLists, error) {
	tl := &TrustLists{path: path}
	if err := tl.Reload(); err != nil {
		return nil, err
	}
	return tl, nil
}

// NewTrustLists builds lists in memory, without a backing file.
func NewTrustLists(f TrustListFile) *TrustLists {
	tl := &TrustLists{}
	tl.apply(f)
	return tl
}

// Reload re-reads the backing file. On error the previous lists stay active.
func (tl *TrustLists) Reload() error {
	if tl.path == "" {
		return fmt.Errorf("trust lists: no backing file")
	}
	data, err := os.ReadFile(tl.path)
	if err != nil {
		return fmt.Errorf("trust lists: read %s: %w", tl.path, err)
	}
	var f TrustListFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("trust lists: parse %s: %w", tl.path, err)
	}
	tl.apply(f)
	return nil
}

func (tl *TrustLists) apply(f TrustListFile) {
	trusted := hostSet(f.Trusted)
	fraud := hostSet(f.Fraudulent)

	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.trusted = trusted
	tl.fraudulent = fraud
	tl.contact = strings.TrimSpace(f.ManualVerificationContact)
}

// IsTrusted reports an exact match of a canonical host against the trusted list.
func (tl *TrustLists) IsTrusted(host string) bool {
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	_, ok := tl.trusted[host]
	return ok
}

// IsFraudulent reports an exact match of a canonical host against the fraud list.
func (tl *TrustLists) IsFraudulent(host string) bool {
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	_, ok := tl.fraudulent[host]
	return ok
}

// Contact is the channel suggested to users for manual verification.
func (tl *TrustLists) Contact() string {
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	return tl.contact
}

// Counts returns the sizes of the trusted and fraudulent lists.
func (tl *TrustLists) Counts() (trusted, fraudulent int) {
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	return len(tl.trusted), len(tl.fraudulent)
}

func hostSet(hosts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		h = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
		if h != "" {
			set[h] = struct{}{}
		}
	}
	return set
}
