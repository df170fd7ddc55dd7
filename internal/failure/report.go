package failure

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

const topFingerprints = 10

// FingerprintStat aggregates every occurrence of one fingerprint.
type FingerprintStat struct {
	Fingerprint    string         `json:"fingerprint"`
	Classification Classification `json:"classification"`
	Operation      string         `json:"operation"`
	Source         string         `json:"source"`
	LastAction     Action         `json:"last_action"`
	Count          int            `json:"count"`
	FirstSeen      time.Time      `json:"first_seen"`
	LastSeen       time.Time      `json:"last_seen"`
	Sample         string         `json:"sample"`
}

type ClassificationCount struct {
	Classification Classification `json:"classification"`
	Count          int            `json:"count"`
}

type RemedyStats struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
}

type RecoveryStats struct {
	Attempted   int                    `json:"attempted"`
	Succeeded   int                    `json:"succeeded"`
	SuccessRate float64                `json:"success_rate"`
	ByRemedy    map[Remedy]RemedyStats `json:"by_remedy"`
}

// Report summarizes the failures and recoveries seen so far.
type Report struct {
	GeneratedAt      time.Time             `json:"generated_at"`
	TotalErrors      int                   `json:"total_errors"`
	ByKind           map[Kind]int          `json:"by_kind"`
	ByClassification []ClassificationCount `json:"by_classification"`
	TopFingerprints  []FingerprintStat     `json:"top_fingerprints"`
	Recovery         RecoveryStats         `json:"recovery"`
	Recommendations  []string              `json:"recommendations"`
}

type journal struct {
	total        int
	fingerprints map[string]*FingerprintStat
	recoveries   map[Remedy]*RemedyStats
}

func newJournal() journal {
	return journal{
		fingerprints: make(map[string]*FingerprintStat),
		recoveries:   make(map[Remedy]*RemedyStats),
	}
}

// record returns the fingerprint's occurrence count including this one.
func (j *journal) record(fp string, c Classification, a Action, ectx Context, err error, now time.Time) int {
	j.total++
	st, ok := j.fingerprints[fp]
	if !ok {
		st = &FingerprintStat{
			Fingerprint:    fp,
			Classification: c,
			Operation:      ectx.Operation,
			Source:         ectx.Source,
			FirstSeen:      now,
		}
		j.fingerprints[fp] = st
	}
	st.Count++
	st.LastSeen = now
	st.LastAction = a
	st.Sample = err.Error()
	return st.Count
}

func (j *journal) recovery(r RecoveryResult) {
	if !r.Attempted {
		return
	}
	st, ok := j.recoveries[r.Remedy]
	if !ok {
		st = &RemedyStats{}
		j.recoveries[r.Remedy] = st
	}
	st.Attempted++
	if r.Succeeded {
		st.Succeeded++
	}
}

// Report builds the error report as of now.
func (h *Handler) Report(now time.Time) Report {
	h.mu.Lock()
	defer h.mu.Unlock()

	rep := Report{
		GeneratedAt: now,
		TotalErrors: h.journal.total,
		ByKind:      make(map[Kind]int),
		Recovery:    RecoveryStats{ByRemedy: make(map[Remedy]RemedyStats)},
	}

	byClass := make(map[Classification]int)
	stats := make([]FingerprintStat, 0, len(h.journal.fingerprints))
	for _, st := range h.journal.fingerprints {
		rep.ByKind[st.Classification.Kind] += st.Count
		byClass[st.Classification] += st.Count
		stats = append(stats, *st)
	}
	for c, n := range byClass {
		rep.ByClassification = append(rep.ByClassification, ClassificationCount{Classification: c, Count: n})
	}
	slices.SortFunc(rep.ByClassification, func(a, b ClassificationCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return cmp.Compare(a.Classification.String(), b.Classification.String())
	})
	slices.SortFunc(stats, func(a, b FingerprintStat) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return b.LastSeen.Compare(a.LastSeen)
	})
	rep.TopFingerprints = stats[:min(len(stats), topFingerprints)]

	for remedy, st := range h.journal.recoveries {
		rep.Recovery.ByRemedy[remedy] = *st
		rep.Recovery.Attempted += st.Attempted
		rep.Recovery.Succeeded += st.Succeeded
	}
	if rep.Recovery.Attempted > 0 {
		rep.Recovery.SuccessRate = float64(rep.Recovery.Succeeded) / float64(rep.Recovery.Attempted)
	}

	rep.Recommendations = recommend(rep, stats)
	return rep
}

var advice = map[Classification]string{
	{KindAPI, SubTimeout}:                  "upstream calls are timing out; raise the per-call timeout or rely on cached registry data",
	{KindAPI, SubConnectionRefused}:        "an upstream host refuses connections; check its address and availability",
	{KindAPI, SubSSL}:                      "TLS handshakes fail; check certificates and trust roots for the upstream host",
	{KindAPI, SubTransport}:                "upstream responses are failing; inspect the service status before the next run",
	{KindAPI, SubRateLimited}:              "calls are rate limited; lower request volume or raise the limiter budget",
	{KindAPI, SubCircuitOpen}:              "a circuit is open; wait for the cooldown or reset it once the dependency recovers",
	{KindDatabase, SubConnectionClosed}:    "database connections are dropping; check pool size and server health",
	{KindDatabase, SubTimeout}:             "database statements time out; look for lock contention or missing indexes",
	{KindDatabase, SubConstraintViolation}: "constraint violations reached the caller; review the conflicting rows manually",
	{KindDatabase, SubQuery}:               "queries are failing; check the schema migration state",
	{KindValidation, SubRequired}:          "records arrive without required fields; report them to the source owner",
	{KindValidation, SubFormat}:            "records carry malformed values; extend the normalizer's accepted formats or fix the source",
	{KindValidation, SubInvalid}:           "records fail validation; review the rejected samples",
	{KindBusiness, SubDuplicateEntity}:     "duplicates escaped the upsert path; run reconciliation for the affected keys",
	{KindBusiness, SubSyncFailure}:         "records could not be synchronized; run reconciliation for the affected keys",
	{KindApplication, SubUnknown}:          "unclassified errors occurred; inspect the samples and extend classification",
}

func recommend(rep Report, stats []FingerprintStat) []string {
	var out []string
	for _, cc := range rep.ByClassification {
		if text, ok := advice[cc.Classification]; ok {
			out = append(out, fmt.Sprintf("%s (%d): %s", cc.Classification, cc.Count, text))
		}
	}
	for _, st := range stats {
		if st.LastAction == ActionCircuitBreak {
			out = append(out, fmt.Sprintf("%s keeps failing; fix its dependency before resuming ingestion", st.Operation))
		}
	}
	if rep.Recovery.Attempted > 0 && rep.Recovery.SuccessRate < 0.5 {
		out = append(out, fmt.Sprintf("automatic recovery succeeded for %d of %d attempts; review remedies", rep.Recovery.Succeeded, rep.Recovery.Attempted))
	}
	return slices.Compact(out)
}
