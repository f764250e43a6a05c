// Package metrics exposes scheduler counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"snoozebot/internal/mute"
)

// Collector implements mute.Recorder.
type Collector struct {
	mutes       prometheus.Counter
	unmutes     *prometheus.CounterVec
	timersArmed prometheus.Gauge
	failures    *prometheus.CounterVec
}

var _ mute.Recorder = (*Collector)(nil)

// NewCollector registers the collectors on reg (prometheus.DefaultRegisterer
// when nil).
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		mutes: f.NewCounter(prometheus.CounterOpts{
			Name: "snoozebot_mutes_total",
			Help: "Restrictions applied",
		}),
		unmutes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "snoozebot_unmutes_total",
			Help: "Restrictions lifted, by trigger",
		}, []string{"trigger"}),
		timersArmed: f.NewGauge(prometheus.GaugeOpts{
			Name: "snoozebot_timers_armed",
			Help: "Expiry timers currently running",
		}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "snoozebot_failures_total",
			Help: "Failed mute/unmute attempts, by error kind",
		}, []string{"kind"}),
	}
}

func (c *Collector) Muted()                       { c.mutes.Inc() }
func (c *Collector) Unmuted(trigger mute.Trigger) { c.unmutes.WithLabelValues(string(trigger)).Inc() }
func (c *Collector) TimerArmed()                  { c.timersArmed.Inc() }
func (c *Collector) TimerDone()                   { c.timersArmed.Dec() }
func (c *Collector) Failure(kind string)          { c.failures.WithLabelValues(kind).Inc() }
