package consensus

import (
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	gometrics "github.com/rcrowley/go-metrics"

	cstypes "sumeragi/consensus/types"
)

const latencySampleSize = 1028

func newConsensusMetric() *consensusMetric {
	r := gometrics.NewRegistry()
	return &consensusMetric{
		registry:        r,
		committed:       gometrics.GetOrRegisterCounter("committed", r),
		rejected:        gometrics.GetOrRegisterCounter("rejected", r),
		duplicates:      gometrics.GetOrRegisterCounter("duplicates", r),
		forwarded:       gometrics.GetOrRegisterCounter("forwarded", r),
		panics:          gometrics.GetOrRegisterCounter("panics", r),
		livenessFaults:  gometrics.GetOrRegisterCounter("liveness_faults", r),
		transportErrors: gometrics.GetOrRegisterCounter("transport_errors", r),
		commitLatency: gometrics.GetOrRegisterHistogram("commit_latency_ms", r,
			gometrics.NewUniformSample(latencySampleSize)),
	}
}

// consensusMetric counts protocol outcomes. Meters and timers are avoided
// since they tick on a background goroutine.
type consensusMetric struct {
	registry gometrics.Registry

	committed       gometrics.Counter
	rejected        gometrics.Counter
	duplicates      gometrics.Counter
	forwarded       gometrics.Counter
	panics          gometrics.Counter
	livenessFaults  gometrics.Counter
	transportErrors gometrics.Counter
	commitLatency   gometrics.Histogram

	mtx        sync.RWMutex
	roundState cstypes.RoundState
}

type consensusMetricSnapshot struct {
	Round          int64   `json:"round"`
	Role           string  `json:"role"`
	Leader         string  `json:"leader"`
	NumPeers       int     `json:"num_peers"`
	MaxFaulty      int     `json:"max_faulty"`
	ProxyTailIndex int     `json:"proxy_tail_index"`
	PanicCount     int32   `json:"panic_count"`
	Committed      int64   `json:"committed"`
	Rejected       int64   `json:"rejected"`
	Duplicates     int64   `json:"duplicates"`
	Forwarded      int64   `json:"forwarded"`
	Panics         int64   `json:"panics"`
	LivenessFaults int64   `json:"liveness_faults"`
	TransportErrs  int64   `json:"transport_errors"`
	LatencyMeanMs  float64 `json:"commit_latency_mean_ms"`
	LatencyP99Ms   float64 `json:"commit_latency_p99_ms"`
	LatencyMaxMs   int64   `json:"commit_latency_max_ms"`
}

func (cm *consensusMetric) JSONString() string {
	cm.mtx.RLock()
	rs := cm.roundState
	cm.mtx.RUnlock()

	snap := consensusMetricSnapshot{
		Round:          rs.Round,
		Role:           rs.Role.String(),
		Leader:         rs.LeaderPubKey,
		NumPeers:       rs.NumPeers,
		MaxFaulty:      rs.MaxFaulty,
		ProxyTailIndex: rs.ProxyTailIndex,
		PanicCount:     rs.PanicCount,
		Committed:      cm.committed.Count(),
		Rejected:       cm.rejected.Count(),
		Duplicates:     cm.duplicates.Count(),
		Forwarded:      cm.forwarded.Count(),
		Panics:         cm.panics.Count(),
		LivenessFaults: cm.livenessFaults.Count(),
		TransportErrs:  cm.transportErrors.Count(),
		LatencyMeanMs:  cm.commitLatency.Mean(),
		LatencyP99Ms:   cm.commitLatency.Percentile(0.99),
		LatencyMaxMs:   cm.commitLatency.Max(),
	}
	s, _ := jsoniter.MarshalToString(snap)
	return s
}

func (cm *consensusMetric) MarkRoundState(rs cstypes.RoundState) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.roundState = rs
}

func (cm *consensusMetric) MarkCommit(since time.Time) {
	cm.committed.Inc(1)
	if !since.IsZero() {
		cm.commitLatency.Update(time.Since(since).Milliseconds())
	}
}

func (cm *consensusMetric) MarkRejected()       { cm.rejected.Inc(1) }
func (cm *consensusMetric) MarkDuplicate()      { cm.duplicates.Inc(1) }
func (cm *consensusMetric) MarkForwarded()      { cm.forwarded.Inc(1) }
func (cm *consensusMetric) MarkPanic()          { cm.panics.Inc(1) }
func (cm *consensusMetric) MarkLivenessFault()  { cm.livenessFaults.Inc(1) }
func (cm *consensusMetric) MarkTransportError() { cm.transportErrors.Inc(1) }
