package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"plantify-cam/internal/advisory"
	"plantify-cam/internal/alert"
	"plantify-cam/internal/camera"
	"plantify-cam/internal/detect"
	"plantify-cam/internal/realtime"
	"plantify-cam/internal/store"
)

// Config holds server configuration, loaded from environment variables.
type Config struct {
	Port         int
	CameraSource string // "synthetic" or an MJPEG stream URL
	DetectorURL  string
	DBPath       string
	AdvisoryFile string
	PlantID      int64
	JPEGQuality  int
}

func loadConfig() Config {
	cfg := Config{
		Port:         5000,
		CameraSource: "synthetic",
		DBPath:       "./plantify.db",
		PlantID:      1,
		JPEGQuality:  70,
	}

	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("CAMERA_SOURCE"); v != "" {
		cfg.CameraSource = v
	}
	if v := os.Getenv("DETECTOR_URL"); v != "" {
		cfg.DetectorURL = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("ADVISORY_FILE"); v != "" {
		cfg.AdvisoryFile = v
	}
	if v := os.Getenv("PLANT_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.PlantID = n
		}
	}
	if v := os.Getenv("JPEG_QUALITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.JPEGQuality = n
		}
	}

	return cfg
}

func openDevice(cfg Config) camera.OpenFunc {
	if cfg.CameraSource == "synthetic" {
		return func() (camera.Device, error) {
			return camera.NewSyntheticDevice(), nil
		}
	}
	return func() (camera.Device, error) {
		return camera.OpenMJPEG(cfg.CameraSource)
	}
}

func main() {
	cfg := loadConfig()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("open alert store", zap.String("path", cfg.DBPath), zap.Error(err))
	}

	book := advisory.NewBook(logger)
	if cfg.AdvisoryFile != "" {
		if err := book.Watch(cfg.AdvisoryFile); err != nil {
			logger.Warn("advisory file not loaded, using built-in entries", zap.Error(err))
		}
	}

	// Realtime server first: the session needs it as its broadcaster.
	rtServer := realtime.New(st, logger)

	throttle := alert.NewThrottle(alert.DefaultWindow)
	recorder := alert.NewRecorder(st, rtServer, throttle, logger)

	sessCfg := camera.Config{
		OpenDevice:  openDevice(cfg),
		Advice:      book,
		Recorder:    recorder,
		Hub:         rtServer,
		PlantID:     cfg.PlantID,
		JPEGQuality: cfg.JPEGQuality,
		Logger:      logger,
	}
	if d := detect.NewHTTPDetector(cfg.DetectorURL, logger); d != nil {
		sessCfg.Detector = d
	}
	session := camera.NewSession(sessCfg)
	rtServer.AttachController(session)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: rtServer.Handler(),
	}

	// Graceful shutdown on signals.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down")
		session.SetActive(false)
		book.Close()
		rtServer.Shutdown()
		st.Close()
		httpServer.Close()
	}()

	logger.Info("plantify camera server running",
		zap.Int("port", cfg.Port),
		zap.String("camera", cfg.CameraSource),
		zap.Bool("detector", session.DetectorReady()))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("http server error", zap.Error(err))
	}
}
