package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsDecode   int64
	errorsWrite    int64
	warnsDecode    int64
	warnsWrite     int64
	filesDecoded   int64
	rowsDecoded    int64
	batchesWritten int64
	channels       sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "decoder") {
		atomic.AddInt64(&warnsDecode, 1)
	} else if strings.Contains(component, "writer") {
		atomic.AddInt64(&warnsWrite, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "decoder") {
		atomic.AddInt64(&errorsDecode, 1)
	} else if strings.Contains(component, "writer") {
		atomic.AddInt64(&errorsWrite, 1)
	}
}

// IncrementFileDecoded records one decoded input file and its row count.
func IncrementFileDecoded(rows int) {
	atomic.AddInt64(&filesDecoded, 1)
	atomic.AddInt64(&rowsDecoded, int64(rows))
	recordChannel("decoded_recordings", rows)
}

// IncrementBatchWritten records one batch handed to the export sink.
func IncrementBatchWritten(size int64) {
	atomic.AddInt64(&batchesWritten, 1)
	recordChannel("export_write", int(size))
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and pipeline statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	fields := Fields{
		"errors_decode":   atomic.LoadInt64(&errorsDecode),
		"errors_write":    atomic.LoadInt64(&errorsWrite),
		"warns_decode":    atomic.LoadInt64(&warnsDecode),
		"warns_write":     atomic.LoadInt64(&warnsWrite),
		"files_decoded":   atomic.LoadInt64(&filesDecoded),
		"rows_decoded":    atomic.LoadInt64(&rowsDecoded),
		"batches_written": atomic.LoadInt64(&batchesWritten),
		"goroutines":      runtime.NumGoroutine(),
		"cpu_percent":     cpuPct,
		"memory_mb":       int64(memStats.Used) / 1024 / 1024,
		"disk_mb":         int64(diskStats.Used) / 1024 / 1024,
		"channels":        channelData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsDecode"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_decode"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsWrite"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_write"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsDecode"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_decode"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsWrite"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_write"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("FilesDecoded"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["files_decoded"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("RowsDecoded"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["rows_decoded"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("BatchesWritten"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["batches_written"].(int64)))},
	)

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
