package engine

import (
	"sync"
	"time"
)

// memorySweepInterval is how often expired host records are pruned.
const memorySweepInterval = time.Hour

// hostRecord is what past dispatches learned about one host.
type hostRecord struct {
	winner     string
	wonAt      time.Time
	challenged map[string]time.Time // engine name -> last challenge
}

func (r *hostRecord) empty() bool {
	return r.winner == "" && len(r.challenged) == 0
}

// DomainMemory keeps per-host escalation hints: the engine that last
// produced a usable page (tried first) and the engines recently served a
// challenge (tried last). Hints expire after the TTL.
// A nil *DomainMemory is valid and remembers nothing.
type DomainMemory struct {
	mu    sync.Mutex
	hosts map[string]*hostRecord
	ttl   time.Duration
	now   func() time.Time
	done  chan struct{}
}

// NewDomainMemory creates a DomainMemory and starts the hourly sweep;
// Stop ends it. A non-positive TTL disables the memory and returns nil.
func NewDomainMemory(ttl time.Duration) *DomainMemory {
	if ttl <= 0 {
		return nil
	}
	dm := newDomainMemory(ttl, time.Now)
	go dm.sweepLoop(memorySweepInterval)
	return dm
}

func newDomainMemory(ttl time.Duration, now func() time.Time) *DomainMemory {
	return &DomainMemory{
		hosts: make(map[string]*hostRecord),
		ttl:   ttl,
		now:   now,
		done:  make(chan struct{}),
	}
}

// Preferred returns the engine that last won for host, or "".
func (dm *DomainMemory) Preferred(host string) string {
	if dm == nil {
		return ""
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()

	rec := dm.hosts[host]
	if rec == nil || rec.winner == "" {
		return ""
	}
	if dm.expired(rec.wonAt) {
		rec.winner = ""
		dm.dropIfEmpty(host, rec)
		return ""
	}
	return rec.winner
}

// Challenged reports whether engineName hit a challenge on host within
// the TTL.
func (dm *DomainMemory) Challenged(host, engineName string) bool {
	if dm == nil {
		return false
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()

	rec := dm.hosts[host]
	if rec == nil {
		return false
	}
	at, ok := rec.challenged[engineName]
	if !ok {
		return false
	}
	if dm.expired(at) {
		delete(rec.challenged, engineName)
		dm.dropIfEmpty(host, rec)
		return false
	}
	return true
}

// RecordWin makes engineName the preferred engine for host and clears its
// challenge mark.
func (dm *DomainMemory) RecordWin(host, engineName string) {
	if dm == nil {
		return
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()

	rec := dm.record(host)
	rec.winner = engineName
	rec.wonAt = dm.now()
	delete(rec.challenged, engineName)
}

// RecordChallenge marks engineName as challenged on host.
func (dm *DomainMemory) RecordChallenge(host, engineName string) {
	if dm == nil {
		return
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()

	rec := dm.record(host)
	if rec.challenged == nil {
		rec.challenged = make(map[string]time.Time)
	}
	rec.challenged[engineName] = dm.now()
}

// Forget drops the preference for host if it names engineName, after the
// preferred engine failed.
func (dm *DomainMemory) Forget(host, engineName string) {
	if dm == nil {
		return
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()

	rec := dm.hosts[host]
	if rec == nil || rec.winner != engineName {
		return
	}
	rec.winner = ""
	dm.dropIfEmpty(host, rec)
}

// Stop ends the sweep goroutine.
func (dm *DomainMemory) Stop() {
	if dm == nil {
		return
	}
	close(dm.done)
}

func (dm *DomainMemory) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-dm.done:
			return
		case <-ticker.C:
			dm.sweep()
		}
	}
}

// sweep removes expired hints and hosts left without any.
func (dm *DomainMemory) sweep() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for host, rec := range dm.hosts {
		if rec.winner != "" && dm.expired(rec.wonAt) {
			rec.winner = ""
		}
		for name, at := range rec.challenged {
			if dm.expired(at) {
				delete(rec.challenged, name)
			}
		}
		dm.dropIfEmpty(host, rec)
	}
}

func (dm *DomainMemory) hostCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.hosts)
}

// record returns host's record, creating it. Callers hold mu.
func (dm *DomainMemory) record(host string) *hostRecord {
	rec := dm.hosts[host]
	if rec == nil {
		rec = &hostRecord{}
		dm.hosts[host] = rec
	}
	return rec
}

func (dm *DomainMemory) dropIfEmpty(host string, rec *hostRecord) {
	if rec.empty() {
		delete(dm.hosts, host)
	}
}

func (dm *DomainMemory) expired(at time.Time) bool {
	return dm.now().Sub(at) > dm.ttl
}
