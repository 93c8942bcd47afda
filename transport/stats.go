package transport

import (
	"math"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vx-labs/grid/rpc"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const notAvailable = "N/A"

// Stats reports the replication statistics of a transport. Values are "N/A" while
// statistics are disabled.
type Stats struct {
	StatisticsEnabled   bool
	ReplicationCount    string
	ReplicationFailures string
	// SuccessRatio is a percentage, or "N/A" when no replication happened yet.
	SuccessRatio string
	// Address and Members are "N/A" until the transport is connected.
	Address string
	Members string
}

type metrics struct {
	replications       *prometheus.CounterVec
	replicationFailure *prometheus.CounterVec
	members            prometheus.Gauge
	coordinator        prometheus.Gauge
	stateTransfers     *prometheus.CounterVec
}

func newMetrics(logger *zap.Logger, registerer prometheus.Registerer) *metrics {
	m := &metrics{
		replications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grid",
			Subsystem: "rpc",
			Name:      "replications_total",
			Help:      "Total number of successful remote invocations.",
		}, []string{"mode"}),
		replicationFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grid",
			Subsystem: "rpc",
			Name:      "replication_failures_total",
			Help:      "Total number of failed remote invocations.",
		}, []string{"mode"}),
		members: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "grid",
			Subsystem: "cluster",
			Name:      "members",
			Help:      "Number of members in the current view.",
		}),
		coordinator: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "grid",
			Subsystem: "cluster",
			Name:      "is_coordinator",
			Help:      "Set to 1 when the local node is the coordinator of the current view.",
		}),
		stateTransfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grid",
			Name:      "state_transfers_total",
			Help:      "Total number of state transfers requested by this node, by outcome.",
		}, []string{"outcome"}),
	}
	if registerer != nil {
		for _, collector := range []prometheus.Collector{m.replications, m.replicationFailure, m.members, m.coordinator, m.stateTransfers} {
			if err := registerer.Register(collector); err != nil {
				logger.Warn("failed to register metric", zap.Error(err))
			}
		}
	}
	return m
}

type statistics struct {
	enabled  atomic.Bool
	count    atomic.Int64
	failures atomic.Int64
}

func (s *statistics) record(m *metrics, mode rpc.ResponseMode, err error) {
	if err != nil {
		m.replicationFailure.WithLabelValues(mode.String()).Inc()
	} else {
		m.replications.WithLabelValues(mode.String()).Inc()
	}
	if !s.enabled.Load() {
		return
	}
	if err != nil {
		s.failures.Inc()
	} else {
		s.count.Inc()
	}
}

func (s *statistics) reset() {
	s.count.Store(0)
	s.failures.Store(0)
}

func successRatio(count, failures int64) string {
	total := count + failures
	if total == 0 {
		return notAvailable
	}
	ratio := float64(count) / float64(total) * 100
	return strconv.FormatFloat(math.Round(ratio*100)/100, 'f', -1, 64) + "%"
}

// SetStatisticsEnabled turns the replication statistics on or off.
func (t *Transport) SetStatisticsEnabled(enabled bool) {
	t.stats.enabled.Store(enabled)
}

// ResetStatistics zeroes the replication statistics.
func (t *Transport) ResetStatistics() {
	t.stats.reset()
}

func (t *Transport) Stats() Stats {
	out := Stats{
		StatisticsEnabled:   t.stats.enabled.Load(),
		ReplicationCount:    notAvailable,
		ReplicationFailures: notAvailable,
		SuccessRatio:        notAvailable,
		Address:             notAvailable,
		Members:             notAvailable,
	}
	if out.StatisticsEnabled {
		count, failures := t.stats.count.Load(), t.stats.failures.Load()
		out.ReplicationCount = strconv.FormatInt(count, 10)
		out.ReplicationFailures = strconv.FormatInt(failures, 10)
		out.SuccessRatio = successRatio(count, failures)
	}
	if t.channel() != nil {
		out.Address = t.Address().String()
		members := t.Members()
		names := make([]string, len(members))
		for idx := range members {
			names[idx] = members[idx].String()
		}
		out.Members = "[" + strings.Join(names, ", ") + "]"
	}
	return out
}
