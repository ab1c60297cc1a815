package pipeline

import (
	"fmt"
	"sort"

	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// Delivery emits fetched samples that are newer than their watermark and
// persists the advanced watermarks once per cycle.
type Delivery struct {
	sink    ports.Sink
	store   ports.WatermarkStore
	archive ports.Archive
	obs     ports.Observability
	prefix  string
}

// NewDelivery builds the pipeline. archive may be nil. prefix is prepended
// to the metric id to form the delivery name.
func NewDelivery(sink ports.Sink, store ports.WatermarkStore, archive ports.Archive, obs ports.Observability, prefix string) *Delivery {
	return &Delivery{sink: sink, store: store, archive: archive, obs: obs, prefix: prefix}
}

// Deliver mutates marks in place. Samples not newer than the watermark are
// dropped silently; overlapping poll windows make them routine.
//
// If the sink fails mid-cycle, the watermarks advanced so far are still
// saved before the sink error is returned. A failed save is returned as is:
// the lines already reached the relay and may be sent again after a restart.
func (d *Delivery) Deliver(fetched map[domain.MetricKey][]domain.Sample, marks domain.Watermarks) error {
	var (
		delivered []domain.Delivery
		skipped   int
		emitErr   error
	)

	for _, key := range sortedKeys(fetched) {
		samples := append([]domain.Sample(nil), fetched[key]...)
		sort.SliceStable(samples, func(i, j int) bool {
			return samples[i].Timestamp.Before(samples[j].Timestamp)
		})

		for _, s := range samples {
			if !marks.Accepts(key, s) {
				skipped++
				continue
			}
			if err := d.sink.Emit(d.measurement(key, s)); err != nil {
				emitErr = fmt.Errorf("emit %s: %w", key, err)
				break
			}
			marks.Advance(key, s)
			delivered = append(delivered, domain.Delivery{Key: key, Sample: s})
		}
		if emitErr != nil {
			break
		}
	}

	d.obs.IncCounter(ports.MetricDelivered, float64(len(delivered)))
	d.obs.IncCounter(ports.MetricSkipped, float64(skipped))

	if d.archive != nil && len(delivered) > 0 {
		if err := d.archive.WriteBatch(delivered); err != nil {
			d.obs.IncCounter(ports.MetricArchiveErrors, 1)
			d.obs.LogError("archive_write_failed", err,
				ports.Field{Key: "archive", Value: d.archive.Name()},
				ports.Field{Key: "samples", Value: len(delivered)})
		}
	}

	if err := d.store.Save(marks); err != nil {
		d.obs.LogCritical("watermark_save_failed", err)
		return fmt.Errorf("save watermarks: %w", err)
	}
	d.obs.SetGauge(ports.MetricWatermarkKeys, float64(len(marks)))

	return emitErr
}

func (d *Delivery) measurement(key domain.MetricKey, s domain.Sample) domain.Measurement {
	name := s.Name
	if name == "" {
		name = d.prefix + key.Metric
	}
	return domain.Measurement{
		Name:      name,
		Value:     s.Value,
		Source:    key.Entity,
		Timestamp: s.Timestamp,
	}
}

// sortedKeys gives deterministic output; no ordering across keys is promised.
func sortedKeys(fetched map[domain.MetricKey][]domain.Sample) []domain.MetricKey {
	keys := make([]domain.MetricKey, 0, len(fetched))
	for k := range fetched {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}
