package reader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"palflow/activpal"
	appconfig "palflow/config"
	"palflow/logger"
	"palflow/models"
)

// Decoder turns a fixed list of activPAL raw files into decoded
// recordings on the raw channel. Distinct files share no state and decode
// on parallel workers; a single file always decodes on one goroutine
// because every compressed row depends on the row before it.
type Decoder struct {
	config  *appconfig.Config
	paths   []string
	rawChan chan<- models.RawRecording
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	// Metrics
	filesDecoded int64
	filesFailed  int64
	rowsDecoded  int64
}

func NewDecoder(cfg *appconfig.Config, paths []string, rawChan chan<- models.RawRecording) *Decoder {
	return &Decoder{
		config:  cfg,
		paths:   paths,
		rawChan: rawChan,
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
}

// Start launches the decode workers. The raw channel is closed once every
// input file has been decoded or rejected, so downstream stages drain and
// stop on their own.
func (d *Decoder) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("decoder already running")
	}
	d.running = true
	d.ctx = ctx
	d.mu.Unlock()

	log := d.log.WithComponent("decoder").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting decoder")

	numWorkers := d.config.Decoder.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > len(d.paths) && len(d.paths) > 0 {
		numWorkers = len(d.paths)
	}

	jobs := make(chan string, len(d.paths))
	for _, p := range d.paths {
		jobs <- p
	}
	close(jobs)

	log.WithFields(logger.Fields{"workers": numWorkers, "files": len(d.paths)}).Info("starting decode workers")

	for i := 0; i < numWorkers; i++ {
		d.wg.Add(1)
		go d.worker(i, jobs)
	}

	go func() {
		d.wg.Wait()
		close(d.rawChan)
		d.log.WithComponent("decoder").WithFields(logger.Fields{
			"files_decoded": atomic.LoadInt64(&d.filesDecoded),
			"files_failed":  atomic.LoadInt64(&d.filesFailed),
			"rows_decoded":  atomic.LoadInt64(&d.rowsDecoded),
		}).Info("decoder finished")
	}()

	return nil
}

// Stop blocks until all decode workers have exited.
func (d *Decoder) Stop() {
	d.wg.Wait()
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Failed reports how many input files were rejected.
func (d *Decoder) Failed() int64 {
	return atomic.LoadInt64(&d.filesFailed)
}

func (d *Decoder) worker(workerID int, jobs <-chan string) {
	defer d.wg.Done()

	log := d.log.WithComponent("decoder").WithFields(logger.Fields{
		"worker_id": workerID,
		"worker":    "decoder",
	})

	for {
		select {
		case <-d.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case path, ok := <-jobs:
			if !ok {
				return
			}
			d.decodeFile(log, path)
		}
	}
}

func (d *Decoder) decodeFile(log *logger.Entry, path string) {
	start := time.Now()

	rec, err := activpal.Load(path)
	if err != nil {
		atomic.AddInt64(&d.filesFailed, 1)
		log.WithError(err).WithFields(logger.Fields{"path": path}).Error("failed to decode file")
		return
	}
	duration := time.Since(start)

	atomic.AddInt64(&d.filesDecoded, 1)
	atomic.AddInt64(&d.rowsDecoded, int64(rec.Len()))
	logger.IncrementFileDecoded(rec.Len())

	meta := rec.Meta()
	logger.LogPerformanceEntry(log, "decoder", "decode_file", duration, logger.Fields{
		"path":      path,
		"rows":      rec.Len(),
		"device_id": meta.DeviceID,
		"hz":        meta.Hz,
		"firmware":  meta.Firmware,
	})

	msg := models.RawRecording{
		SourceFile: path,
		Recording:  rec,
		DecodedAt:  time.Now(),
	}
	select {
	case <-d.ctx.Done():
	case d.rawChan <- msg:
		logger.RecordChannelMessage("raw_channel", rec.Len())
		logger.LogDataFlowEntry(log, "input_files", "raw_channel", rec.Len(), "rows")
	}
}
