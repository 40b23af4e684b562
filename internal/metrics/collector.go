package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vhfbalise/runner/internal/store"
)

// StatsSource is the subset of internal/store.Store the collector needs to
// report live gauges at scrape time. store.Store satisfies this directly.
type StatsSource interface {
	ListEnabledChannels(ctx context.Context) ([]*store.Channel, error)
	PendingForChannel(ctx context.Context, channelID int64) ([]*store.TxRow, error)
}

// Collector implements prometheus.Collector to read live channel/ledger
// state at scrape time rather than keeping a parallel set of gauges that
// could drift from the store.
type Collector struct {
	stats StatsSource

	channelsEnabled *prometheus.Desc
	pendingRows     *prometheus.Desc
}

func NewCollector(stats StatsSource) *Collector {
	return &Collector{
		stats: stats,
		channelsEnabled: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "channels_enabled"),
			"Current number of enabled channels.",
			nil, nil,
		),
		pendingRows: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pending_transmissions"),
			"Current number of PENDING rows across all channels.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.channelsEnabled
	ch <- c.pendingRows
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx := context.Background()

	channels, err := c.stats.ListEnabledChannels(ctx)
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.channelsEnabled, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.pendingRows, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.channelsEnabled, prometheus.GaugeValue, float64(len(channels)))

	var pending int
	for _, ch2 := range channels {
		rows, err := c.stats.PendingForChannel(ctx, ch2.ID)
		if err != nil {
			continue
		}
		pending += len(rows)
	}
	ch <- prometheus.MustNewConstMetric(c.pendingRows, prometheus.GaugeValue, float64(pending))
}
