package repositories

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// ProbeStatus summarises a dependency probe outcome.
type ProbeStatus string

const (
	ProbeStatusOK       ProbeStatus = "ok"
	ProbeStatusDegraded ProbeStatus = "degraded"
	ProbeStatusDown     ProbeStatus = "down"
)

// Probe checks a single backing dependency (Firestore, Redis, ...).
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// ProbeResult is the outcome of a single probe.
type ProbeResult struct {
	Status  ProbeStatus   `json:"status"`
	Error   string        `json:"error,omitempty"`
	Latency time.Duration `json:"latencyMs"`
}

// ReadinessReport aggregates probe results.
type ReadinessReport struct {
	Status    ProbeStatus            `json:"status"`
	Probes    map[string]ProbeResult `json:"probes"`
	CheckedAt time.Time              `json:"checkedAt"`
}

// Readiness runs dependency probes concurrently.
type Readiness struct {
	probes []Probe
	now    func() time.Time
}

// NewReadiness validates and stores the probe set. Probes without a name or check are rejected.
func NewReadiness(probes []Probe, now func() time.Time) (*Readiness, error) {
	for _, probe := range probes {
		if strings.TrimSpace(probe.Name) == "" || probe.Check == nil {
			return nil, errors.New("readiness: probe requires name and check")
		}
	}
	if now == nil {
		now = time.Now
	}
	copied := make([]Probe, len(probes))
	copy(copied, probes)
	return &Readiness{probes: copied, now: now}, nil
}

// Check executes every probe and reports the worst status observed.
func (r *Readiness) Check(ctx context.Context) ReadinessReport {
	report := ReadinessReport{Status: ProbeStatusOK, Probes: make(map[string]ProbeResult, len(r.probes))}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, probe := range r.probes {
		probe := probe
		wg.Add(1)
		go func() {
			defer wg.Done()
			timeout := probe.Timeout
			if timeout <= 0 {
				timeout = defaultProbeTimeout
			}
			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := r.now()
			err := probe.Check(probeCtx)
			result := ProbeResult{Status: ProbeStatusOK, Latency: r.now().Sub(start)}
			switch {
			case err == nil:
			case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
				result.Status = ProbeStatusDown
				result.Error = err.Error()
			default:
				result.Status = ProbeStatusDegraded
				result.Error = err.Error()
			}

			mu.Lock()
			report.Probes[probe.Name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, result := range report.Probes {
		if result.Status == ProbeStatusDown {
			report.Status = ProbeStatusDown
			break
		}
		if result.Status == ProbeStatusDegraded {
			report.Status = ProbeStatusDegraded
		}
	}
	report.CheckedAt = r.now()
	return report
}
