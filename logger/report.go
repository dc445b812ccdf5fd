package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type componentStat struct {
	warns  int64
	errors int64
}

var (
	bookMessages     int64
	cacheWrites      int64
	cacheWriteErrors int64
	scans            int64
	opportunities    int64
	components       sync.Map // map[string]*componentStat
)

func componentStats(component string) *componentStat {
	v, _ := components.LoadOrStore(component, &componentStat{})
	return v.(*componentStat)
}

func recordWarn(component string) {
	atomic.AddInt64(&componentStats(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&componentStats(component).errors, 1)
}

// IncrementBookMessage counts a stream message that reached an order book.
func IncrementBookMessage() {
	atomic.AddInt64(&bookMessages, 1)
}

// RecordCacheWrites counts a finished write batch.
func RecordCacheWrites(ok, failed int) {
	atomic.AddInt64(&cacheWrites, int64(ok))
	atomic.AddInt64(&cacheWriteErrors, int64(failed))
}

// RecordScan counts one scanner pass and the rows it produced.
func RecordScan(rows int) {
	atomic.AddInt64(&scans, 1)
	atomic.AddInt64(&opportunities, int64(rows))
}

// StartReport logs system and pipeline statistics every interval until ctx
// is done.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func reportFields() Fields {
	perComponent := map[string]map[string]int64{}
	components.Range(func(k, v any) bool {
		cs := v.(*componentStat)
		perComponent[k.(string)] = map[string]int64{
			"warns":  atomic.LoadInt64(&cs.warns),
			"errors": atomic.LoadInt64(&cs.errors),
		}
		return true
	})

	return Fields{
		"book_messages":      atomic.LoadInt64(&bookMessages),
		"cache_writes":       atomic.LoadInt64(&cacheWrites),
		"cache_write_errors": atomic.LoadInt64(&cacheWriteErrors),
		"scans":              atomic.LoadInt64(&scans),
		"opportunities":      atomic.LoadInt64(&opportunities),
		"goroutines":         runtime.NumGoroutine(),
		"components":         perComponent,
	}
}

func logReport(ctx context.Context, log *Log) {
	fields := reportFields()

	cpuPct := 0.0
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		cpuPct = pct[0]
	}
	memMB := 0.0
	if vm, err := mem.VirtualMemory(); err == nil {
		memMB = float64(vm.Used) / 1024 / 1024
	}
	var bytesRecv uint64
	if counters, err := gnet.IOCounters(false); err == nil && len(counters) > 0 {
		bytesRecv = counters[0].BytesRecv
	}

	fields["cpu_percent"] = cpuPct
	fields["memory_mb"] = int64(memMB)
	fields["net_bytes_recv"] = int64(bytesRecv)

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	publishMetrics(ctx, []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(memMB)},
		{MetricName: aws.String("BookMessages"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["book_messages"].(int64)))},
		{MetricName: aws.String("CacheWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["cache_writes"].(int64)))},
		{MetricName: aws.String("CacheWriteErrors"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["cache_write_errors"].(int64)))},
		{MetricName: aws.String("Opportunities"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["opportunities"].(int64)))},
	})
}
