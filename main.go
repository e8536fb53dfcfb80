package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"palflow/activpal"
	"palflow/config"
	"palflow/logger"
	"palflow/marker"
	"palflow/models"
	"palflow/processor"
	"palflow/reader"
	"palflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	setCode := flag.String("set-code", "", "Patch the file code of the target file and exit")
	markSample := flag.Int("mark", -1, "Mark the peak nearest this sample of the target file and exit")
	markConfidence := flag.Int("confidence", 0, "Confidence rating (1-10) recorded with -mark")
	marksPath := flag.String("marks", "", "Marks CSV path (overrides marker.output)")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Palflow.Name,
		"version": cfg.Palflow.Version,
	}).Info("starting palflow")

	files := flag.Args()
	if *marksPath != "" {
		cfg.Marker.Output = *marksPath
	}

	if *setCode != "" {
		runSetCode(log, *setCode, files)
		return
	}
	if *markSample >= 0 {
		runMark(log, cfg, *markSample, *markConfidence, files)
		return
	}

	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] file.datx [file.dat ...]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		if cfg.Storage.S3.Enabled {
			logger.InitCloudWatch(cfg.Storage.S3.Region, cfg.Palflow.Name, cfg.Logging.DashboardName)
		}
		logger.StartReport(ctx, log, 30*time.Second)
	}

	rawChan := make(chan models.RawRecording, cfg.Decoder.MaxWorkers*2)
	batchChan := make(chan models.SampleBatch, cfg.Processor.MaxWorkers*4)

	decoder := reader.NewDecoder(cfg, files, rawChan)
	flattener := processor.NewFlattener(cfg, rawChan, batchChan)

	sampleWriter, err := writer.NewSampleWriter(cfg, batchChan)
	if err != nil {
		log.WithError(err).Error("failed to create sample writer")
		os.Exit(1)
	}

	if err := decoder.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start decoder")
		os.Exit(1)
	}
	if err := flattener.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start flattener")
		os.Exit(1)
	}
	if err := sampleWriter.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start sample writer")
		os.Exit(1)
	}

	log.Info("all components started successfully")

	// The pipeline is finite: the decoder closes the raw channel when the
	// input list is exhausted and each stage drains the one before it.
	done := make(chan struct{})
	go func() {
		decoder.Stop()
		flattener.Stop()
		sampleWriter.Stop()
		close(done)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-done:
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		log.Info("starting graceful shutdown")
		cancel()
		select {
		case <-done:
			log.Info("graceful shutdown completed")
		case <-time.After(30 * time.Second):
			log.Warn("graceful shutdown timeout exceeded")
		}
	}

	exitCode := 0
	if decoder.Failed() > 0 || sampleWriter.Errors() > 0 {
		log.WithFields(logger.Fields{
			"files_failed": decoder.Failed(),
			"write_errors": sampleWriter.Errors(),
		}).Warn("pipeline finished with errors")
		exitCode = 1
	}

	log.Info("palflow stopped")
	os.Exit(exitCode)
}

// runSetCode patches the eight byte file-code field of one recording in
// place.
func runSetCode(log *logger.Log, code string, files []string) {
	if len(files) != 1 {
		fmt.Fprintln(os.Stderr, "usage: -set-code CODE file.datx")
		os.Exit(2)
	}
	if err := activpal.SetFileCode(files[0], code); err != nil {
		log.WithError(err).WithFields(logger.Fields{"path": files[0]}).Error("failed to set file code")
		os.Exit(1)
	}
	log.WithFields(logger.Fields{"path": files[0], "code": code}).Info("file code updated")
}

// runMark decodes one recording, snaps the chosen sample to the nearest
// peak on the magnitude channel and appends the mark to the marks CSV.
func runMark(log *logger.Log, cfg *config.Config, sample, confidence int, files []string) {
	if len(files) != 1 {
		fmt.Fprintln(os.Stderr, "usage: -mark SAMPLE [-confidence N] file.datx")
		os.Exit(2)
	}
	if cfg.Marker.Output == "" {
		log.Error("marker.output (or -marks) is required with -mark")
		os.Exit(1)
	}

	rec, err := activpal.Load(files[0])
	if err != nil {
		log.WithError(err).WithFields(logger.Fields{"path": files[0]}).Error("failed to decode file")
		os.Exit(1)
	}

	finder := marker.NewPeakFinder(cfg.Marker.ZoneWidth, cfg.Marker.MinSwing)
	peak := finder.Nearest(rec.RSS(), sample)

	m := models.Mark{
		File:       files[0],
		Sample:     int64(peak),
		DateTime:   rec.TimeAt(peak),
		Confidence: confidence,
	}
	if err := marker.AppendMark(cfg.Marker.Output, m); err != nil {
		log.WithError(err).Error("failed to append mark")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"path":   files[0],
		"sample": peak,
		"time":   m.DateTime.Format("2006-01-02 15:04:05"),
	}).Info("mark recorded")
}
