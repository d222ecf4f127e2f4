package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	acceptsTotal      atomic.Uint64
	drainSkippedTotal atomic.Uint64
	orphanBlobsTotal  atomic.Uint64

	nudgesSent      atomic.Uint64
	nudgesFailed    atomic.Uint64
	nudgesReceived  atomic.Uint64
	nudgesDiscarded atomic.Uint64

	exportsEnqueued     = newCounterVec("export_type")
	exportsCompleted    = newCounterVec("export_type")
	exportsRetried      = newCounterVec("export_type")
	exportsDeadLettered = newCounterVec("export_type")
	exportsFailed       = newCounterVec("export_type")

	generationDuration = newHistogram([]float64{50, 100, 250, 500, 1000, 2500, 5000, 15000, 60000, 120000})
)

// IncAccepted counts a successful accept.
func IncAccepted() { acceptsTotal.Add(1) }

// IncDrainSkipped counts drain requests dropped because a drain was running.
func IncDrainSkipped() { drainSkippedTotal.Add(1) }

// IncOrphanBlob counts blobs that could not be deleted after a replace.
func IncOrphanBlob() { orphanBlobsTotal.Add(1) }

// Nudge counters track SQS wake-up messages for remote workers.
func IncNudgeSent()      { nudgesSent.Add(1) }
func IncNudgeFailed()    { nudgesFailed.Add(1) }
func IncNudgeReceived()  { nudgesReceived.Add(1) }
func IncNudgeDiscarded() { nudgesDiscarded.Add(1) }

func IncExportEnqueued(exportType string)     { exportsEnqueued.Inc(exportType) }
func IncExportCompleted(exportType string)    { exportsCompleted.Inc(exportType) }
func IncExportRetried(exportType string)      { exportsRetried.Inc(exportType) }
func IncExportDeadLettered(exportType string) { exportsDeadLettered.Inc(exportType) }
func IncExportFailed(exportType string)       { exportsFailed.Inc(exportType) }

// ObserveGeneration records how long one artifact generation took.
func ObserveGeneration(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	if ms < 0 {
		ms = 0
	}
	generationDuration.Observe(ms)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "confirmations_accepted_total", "Accepted document analyses", acceptsTotal.Load())
	writeCounter(&buf, "export_drain_skipped_total", "Drain requests ignored while a drain was running", drainSkippedTotal.Load())
	writeCounter(&buf, "export_orphan_blobs_total", "Superseded artifact blobs left for the sweeper", orphanBlobsTotal.Load())
	writeCounter(&buf, "export_nudges_sent_total", "Worker nudges published", nudgesSent.Load())
	writeCounter(&buf, "export_nudges_failed_total", "Worker nudges that could not be published", nudgesFailed.Load())
	writeCounter(&buf, "export_nudges_received_total", "Worker nudges consumed", nudgesReceived.Load())
	writeCounter(&buf, "export_nudges_discarded_total", "Malformed worker nudges deleted without processing", nudgesDiscarded.Load())
	writeCounterVec(&buf, "exports_enqueued_total", "Export jobs enqueued", exportsEnqueued)
	writeCounterVec(&buf, "exports_completed_total", "Export jobs completed", exportsCompleted)
	writeCounterVec(&buf, "exports_retried_total", "Export job failures rescheduled with backoff", exportsRetried)
	writeCounterVec(&buf, "exports_dead_lettered_total", "Export jobs moved to the dead letter queue", exportsDeadLettered)
	writeCounterVec(&buf, "exports_failed_total", "Export jobs marked failed after a dead letter write error", exportsFailed)
	writeHistogram(&buf, "export_generation_duration_ms", "Artifact generation duration in milliseconds", generationDuration.Snapshot())
	return buf.String()
}

type counterVec struct {
	label  string
	mu     sync.Mutex
	values map[string]uint64
}

func newCounterVec(label string) *counterVec {
	return &counterVec{label: label, values: make(map[string]uint64)}
}

func (c *counterVec) Inc(labelValue string) {
	c.mu.Lock()
	c.values[labelValue]++
	c.mu.Unlock()
}

func (c *counterVec) snapshot() ([]string, map[string]uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.values))
	keys := make([]string, 0, len(c.values))
	for k, v := range c.values {
		out[k] = v
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, out
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{buckets: buckets, counts: make([]uint64, len(buckets))}
}

// Observe adds value to the first bucket whose bound it fits; rendering accumulates.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeCounterVec(buf *bytes.Buffer, name, help string, vec *counterVec) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	keys, values := vec.snapshot()
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s=%q} %d\n", name, vec.label, k, values[k])
	}
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
