package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	parquetwriter "github.com/xitongsys/parquet-go/writer"
	"golang.org/x/time/rate"

	appconfig "palflow/config"
	"palflow/logger"
	"palflow/models"
)

// ParquetRecord is the sink schema for one flattened sample row.
type ParquetRecord struct {
	SourceFile string  `parquet:"name=source_file, type=BYTE_ARRAY, convertedtype=UTF8"`
	DeviceID   int64   `parquet:"name=device_id, type=INT64"`
	FileCode   string  `parquet:"name=file_code, type=BYTE_ARRAY, convertedtype=UTF8"`
	Sample     int64   `parquet:"name=sample, type=INT64"`
	Timestamp  int64   `parquet:"name=timestamp, type=INT64"`
	X          float64 `parquet:"name=x, type=DOUBLE"`
	Y          float64 `parquet:"name=y, type=DOUBLE"`
	Z          float64 `parquet:"name=z, type=DOUBLE"`
	RSS        float64 `parquet:"name=rss, type=DOUBLE"`
}

// memoryFileWriter implements the ParquetFile interface for in-memory writing
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{
		buffer: &bytes.Buffer{},
	}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	// Writing is append-only; parquet-go never seeks backwards here.
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// SampleWriter buffers flattened sample batches per source file, encodes
// each flush into an in-memory Parquet file and ships it either to S3 or
// to a local output directory.
type SampleWriter struct {
	config      *appconfig.Config
	batchChan   <-chan models.SampleBatch
	s3Client    *s3.Client
	limiter     *rate.Limiter
	ctx         context.Context
	wg          *sync.WaitGroup
	mu          sync.RWMutex
	running     bool
	log         *logger.Log
	buffer      map[string][]models.SampleRow
	flushTicker *time.Ticker
	flushStop   chan struct{}
	flushDone   chan struct{}

	// Metrics
	batchesWritten int64
	rowsWritten    int64
	errorsCount    int64
}

// NewSampleWriter builds a SampleWriter. The AWS client is only
// configured when the S3 sink is enabled; otherwise batches land in the
// configured local directory.
func NewSampleWriter(cfg *appconfig.Config, batchChan <-chan models.SampleBatch) (*SampleWriter, error) {
	log := logger.GetLogger()

	w := &SampleWriter{
		config:    cfg,
		batchChan: batchChan,
		wg:        &sync.WaitGroup{},
		log:       log,
		buffer:    make(map[string][]models.SampleRow),
		limiter:   uploadLimiter(cfg.Writer.UploadsPerSecond),
	}

	if cfg.Storage.S3.Enabled {
		ctx := context.Background()

		loadOpts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.Storage.S3.Region),
		}
		if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(
					cfg.Storage.S3.AccessKeyID,
					cfg.Storage.S3.SecretAccessKey,
					"",
				),
			))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			log.WithComponent("sample_writer").WithError(err).Warn("failed to load AWS configuration")
			return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
		}

		creds, err := awsCfg.Credentials.Retrieve(ctx)
		if err != nil || !creds.HasKeys() {
			return nil, fmt.Errorf("aws credentials not found")
		}

		w.s3Client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Storage.S3.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
			}
			o.UsePathStyle = cfg.Storage.S3.PathStyle
		})

		log.WithComponent("sample_writer").WithFields(logger.Fields{
			"bucket":     cfg.Storage.S3.Bucket,
			"region":     cfg.Storage.S3.Region,
			"endpoint":   cfg.Storage.S3.Endpoint,
			"path_style": cfg.Storage.S3.PathStyle,
		}).Info("s3 sink initialized")
	} else {
		log.WithComponent("sample_writer").WithFields(logger.Fields{
			"local_dir": cfg.Writer.LocalDir,
		}).Info("local sink initialized")
	}

	return w, nil
}

func uploadLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Start launches the writer workers and the periodic flusher.
func (w *SampleWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sample writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.mu.Unlock()

	log := w.log.WithComponent("sample_writer").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting sample writer")

	w.flushTicker = time.NewTicker(w.config.Writer.FlushInterval)
	w.flushStop = make(chan struct{})
	w.flushDone = make(chan struct{})

	numWorkers := w.config.Writer.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}

	log.WithFields(logger.Fields{"workers": numWorkers}).Info("starting sample writer workers")

	for i := 0; i < numWorkers; i++ {
		w.wg.Add(1)
		go w.worker(i)
	}

	go w.flushWorker()

	return nil
}

// Stop waits for the workers to drain the batch channel, then flushes
// whatever is still buffered.
func (w *SampleWriter) Stop() {
	w.wg.Wait()

	w.flushTicker.Stop()
	close(w.flushStop)
	<-w.flushDone

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.flushBuffers("final")
	w.log.WithComponent("sample_writer").WithFields(logger.Fields{
		"batches_written": atomic.LoadInt64(&w.batchesWritten),
		"rows_written":    atomic.LoadInt64(&w.rowsWritten),
		"errors":          atomic.LoadInt64(&w.errorsCount),
	}).Info("sample writer stopped")
}

// Errors reports how many flushes failed.
func (w *SampleWriter) Errors() int64 {
	return atomic.LoadInt64(&w.errorsCount)
}

func (w *SampleWriter) worker(workerID int) {
	defer w.wg.Done()

	log := w.log.WithComponent("sample_writer").WithFields(logger.Fields{
		"worker_id": workerID,
		"worker":    "sample_writer",
	})

	for {
		select {
		case <-w.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case batch, ok := <-w.batchChan:
			if !ok {
				return
			}
			w.addBatch(batch)
			logger.RecordChannelMessage("batch_channel", batch.RecordCount)
			logger.LogDataFlowEntry(log, "batch_channel", "sample_writer", batch.RecordCount, "rows")
		}
	}
}

func (w *SampleWriter) addBatch(batch models.SampleBatch) {
	w.mu.Lock()
	w.buffer[batch.SourceFile] = append(w.buffer[batch.SourceFile], batch.Rows...)
	w.mu.Unlock()
}

func (w *SampleWriter) flushWorker() {
	defer close(w.flushDone)

	log := w.log.WithComponent("sample_writer").WithFields(logger.Fields{"worker": "flush"})

	for {
		select {
		case <-w.ctx.Done():
			log.Info("flush worker stopped due to context cancellation")
			return
		case <-w.flushStop:
			return
		case <-w.flushTicker.C:
			w.flushBuffers("interval")
		}
	}
}

func (w *SampleWriter) flushBuffers(reason string) {
	w.mu.Lock()
	buffers := w.buffer
	w.buffer = make(map[string][]models.SampleRow)
	w.mu.Unlock()

	if len(buffers) == 0 {
		return
	}

	w.log.WithComponent("sample_writer").WithFields(logger.Fields{
		"flushed_buffers": len(buffers),
		"reason":          reason,
	}).Info("flushing buffers")

	for sourceFile, rows := range buffers {
		if len(rows) == 0 {
			continue
		}
		batch := models.SampleBatch{
			BatchID:     uuid.New().String(),
			SourceFile:  sourceFile,
			DeviceID:    rows[0].DeviceID,
			FileCode:    rows[0].FileCode,
			Rows:        rows,
			RecordCount: len(rows),
			Timestamp:   rows[0].Timestamp,
			ProcessedAt: time.Now(),
		}
		w.processBatch(batch)
	}
}

func (w *SampleWriter) processBatch(batch models.SampleBatch) {
	log := w.log.WithComponent("sample_writer").WithFields(logger.Fields{
		"batch_id":     batch.BatchID,
		"source_file":  batch.SourceFile,
		"device_id":    batch.DeviceID,
		"record_count": batch.RecordCount,
		"operation":    "process_batch",
	})

	if batch.RecordCount == 0 {
		log.Debug("batch has no records, skipping")
		return
	}

	key := w.generateKey(batch)
	log = log.WithFields(logger.Fields{"key": key})

	data, fileSize, err := w.createParquetFile(batch.Rows)
	if err != nil {
		atomic.AddInt64(&w.errorsCount, 1)
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	if w.s3Client != nil {
		err = w.uploadToS3(key, data)
	} else {
		err = w.writeLocal(key, data)
	}
	if err != nil {
		atomic.AddInt64(&w.errorsCount, 1)
		log.WithError(err).Error("failed to write batch")
		return
	}

	atomic.AddInt64(&w.batchesWritten, 1)
	atomic.AddInt64(&w.rowsWritten, int64(batch.RecordCount))
	logger.IncrementBatchWritten(fileSize)
	w.log.LogMetric("sample_writer", "rows_written", int64(batch.RecordCount), "counter", logger.Fields{
		"source_file": batch.SourceFile,
	})

	log.WithFields(logger.Fields{"file_size": fileSize}).Info("batch written")
}

// generateKey builds the partitioned object key for one batch, e.g.
// device=438487/2017/03/15/walk_3f2a.parquet.
func (w *SampleWriter) generateKey(batch models.SampleBatch) string {
	var parts []string
	for _, k := range w.config.Writer.Partitioning.AdditionalKeys {
		switch k {
		case "device":
			parts = append(parts, fmt.Sprintf("device=%d", batch.DeviceID))
		case "file_code":
			if batch.FileCode != "" {
				parts = append(parts, fmt.Sprintf("code=%s", batch.FileCode))
			}
		}
	}

	ts := batch.Timestamp
	timeFormat := w.config.Writer.Partitioning.TimeFormat
	if timeFormat == "" {
		timeFormat = "{year}/{month}/{day}"
	}
	timePath := strings.ReplaceAll(timeFormat, "{year}", fmt.Sprintf("%04d", ts.Year()))
	timePath = strings.ReplaceAll(timePath, "{month}", fmt.Sprintf("%02d", ts.Month()))
	timePath = strings.ReplaceAll(timePath, "{day}", fmt.Sprintf("%02d", ts.Day()))
	parts = append(parts, timePath)

	base := strings.TrimSuffix(filepath.Base(batch.SourceFile), filepath.Ext(batch.SourceFile))
	short := batch.BatchID
	if len(short) > 8 {
		short = short[:8]
	}
	filename := fmt.Sprintf("%s_%s.parquet", base, short)

	key := filepath.Join(append(parts, filename)...)
	return filepath.ToSlash(key)
}

func (w *SampleWriter) createParquetFile(rows []models.SampleRow) ([]byte, int64, error) {
	fw := newMemoryFileWriter()

	pw, err := parquetwriter.NewParquetWriter(fw, new(ParquetRecord), 4)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch w.config.Writer.Compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, row := range rows {
		record := ParquetRecord{
			SourceFile: row.SourceFile,
			DeviceID:   int64(row.DeviceID),
			FileCode:   row.FileCode,
			Sample:     row.Sample,
			Timestamp:  row.Timestamp.UnixMilli(),
			X:          row.X,
			Y:          row.Y,
			Z:          row.Z,
			RSS:        row.RSS,
		}
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, 0, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, 0, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	data := fw.Bytes()
	return data, int64(len(data)), nil
}

func (w *SampleWriter) uploadToS3(key string, data []byte) error {
	ctx := context.WithoutCancel(w.ctx)
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":    "parquet",
			"compression":     w.config.Writer.Compression,
			"palflow-version": w.config.Palflow.Version,
		},
	}

	if _, err := w.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", w.config.Storage.S3.Bucket, err)
	}
	return nil
}

func (w *SampleWriter) writeLocal(key string, data []byte) error {
	path := filepath.Join(w.config.Writer.LocalDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}
