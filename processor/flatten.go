package processor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	appconfig "palflow/config"
	"palflow/logger"
	"palflow/models"
)

// Flattener converts decoded recordings into bounded batches of flattened
// sample rows for the writer. Rows carry the per-row timestamp and the
// magnitude channel so the sink schema is self-contained.
type Flattener struct {
	config    *appconfig.Config
	rawChan   <-chan models.RawRecording
	batchChan chan<- models.SampleBatch
	ctx       context.Context
	wg        *sync.WaitGroup
	mu        sync.RWMutex
	running   bool
	log       *logger.Log

	// Metrics
	recordingsProcessed int64
	batchesProduced     int64
	rowsFlattened       int64
}

func NewFlattener(cfg *appconfig.Config, rawChan <-chan models.RawRecording, batchChan chan<- models.SampleBatch) *Flattener {
	return &Flattener{
		config:    cfg,
		rawChan:   rawChan,
		batchChan: batchChan,
		wg:        &sync.WaitGroup{},
		log:       logger.GetLogger(),
	}
}

// Start launches the flatten workers. The batch channel is closed once
// the raw channel is drained so the writer can finish on its own.
func (f *Flattener) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("flattener already running")
	}
	f.running = true
	f.ctx = ctx
	f.mu.Unlock()

	log := f.log.WithComponent("flattener").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting flattener")

	numWorkers := f.config.Processor.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}

	log.WithFields(logger.Fields{"workers": numWorkers}).Info("starting flattener workers")

	for i := 0; i < numWorkers; i++ {
		f.wg.Add(1)
		go f.worker(i)
	}

	go func() {
		f.wg.Wait()
		close(f.batchChan)
		f.log.WithComponent("flattener").WithFields(logger.Fields{
			"recordings_processed": atomic.LoadInt64(&f.recordingsProcessed),
			"batches_produced":     atomic.LoadInt64(&f.batchesProduced),
			"rows_flattened":       atomic.LoadInt64(&f.rowsFlattened),
		}).Info("flattener finished")
	}()

	return nil
}

// Stop blocks until all flatten workers have exited.
func (f *Flattener) Stop() {
	f.wg.Wait()
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
}

func (f *Flattener) worker(workerID int) {
	defer f.wg.Done()

	log := f.log.WithComponent("flattener").WithFields(logger.Fields{
		"worker_id": workerID,
		"worker":    "flattener",
	})

	for {
		select {
		case <-f.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case rawMsg, ok := <-f.rawChan:
			if !ok {
				return
			}

			start := time.Now()
			rows := f.flattenRecording(rawMsg)
			duration := time.Since(start)

			atomic.AddInt64(&f.recordingsProcessed, 1)
			atomic.AddInt64(&f.rowsFlattened, int64(rows))

			logger.LogPerformanceEntry(log, "flattener", "flatten_recording", duration, logger.Fields{
				"worker_id":   workerID,
				"source_file": rawMsg.SourceFile,
				"rows":        rows,
			})
		}
	}
}

// flattenRecording splits one recording into batches of at most
// Processor.BatchSize rows and returns the number of rows emitted.
func (f *Flattener) flattenRecording(rawMsg models.RawRecording) int {
	rec := rawMsg.Recording
	meta := rec.Meta()

	x, y, z := rec.X(), rec.Y(), rec.Z()
	rss := rec.RSS()
	timestamps := rec.Timestamps()
	n := rec.Len()

	batchSize := f.config.Processor.BatchSize
	if batchSize < 1 {
		batchSize = n
	}

	for start := 0; start < n; start += batchSize {
		end := start + batchSize
		if end > n {
			end = n
		}

		rows := make([]models.SampleRow, 0, end-start)
		for i := start; i < end; i++ {
			rows = append(rows, models.SampleRow{
				SourceFile: rawMsg.SourceFile,
				DeviceID:   meta.DeviceID,
				FileCode:   meta.FileCode,
				Sample:     int64(i),
				Timestamp:  timestamps[i],
				X:          x[i],
				Y:          y[i],
				Z:          z[i],
				RSS:        rss[i],
			})
		}

		batch := models.SampleBatch{
			BatchID:     uuid.New().String(),
			SourceFile:  rawMsg.SourceFile,
			DeviceID:    meta.DeviceID,
			FileCode:    meta.FileCode,
			Rows:        rows,
			RecordCount: len(rows),
			Timestamp:   timestamps[start],
			ProcessedAt: time.Now(),
		}

		select {
		case <-f.ctx.Done():
			return n
		case f.batchChan <- batch:
			atomic.AddInt64(&f.batchesProduced, 1)
		}
	}
	return n
}
