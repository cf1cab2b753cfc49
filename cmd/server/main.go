package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/codebuildervaibhav/video-transcriber/internal/asr"
	"github.com/codebuildervaibhav/video-transcriber/internal/cleanup"
	"github.com/codebuildervaibhav/video-transcriber/internal/extract"
	"github.com/codebuildervaibhav/video-transcriber/internal/handlers"
	"github.com/codebuildervaibhav/video-transcriber/internal/mediastore"
	"github.com/codebuildervaibhav/video-transcriber/internal/pipeline"
	"github.com/codebuildervaibhav/video-transcriber/internal/progress"
	"github.com/codebuildervaibhav/video-transcriber/internal/status"
	"github.com/codebuildervaibhav/video-transcriber/internal/storage"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	Logging struct {
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"logging"`

	MediaStore struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"media_store"`

	Pipeline struct {
		Mode        string `yaml:"mode"` // "video" or "audio"
		VideoSuffix string `yaml:"video_suffix"`
		AudioSuffix string `yaml:"audio_suffix"`
	} `yaml:"pipeline"`

	Audio struct {
		SampleRate int `yaml:"sample_rate"`
		Channels   int `yaml:"channels"`
	} `yaml:"audio"`

	ASR struct {
		APIKeyEnv           string `yaml:"api_key_env"`
		Model               string `yaml:"model"`
		MaxWaitSeconds      int    `yaml:"max_wait_seconds"`
		PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	} `yaml:"asr"`

	Files struct {
		TempDir    string `yaml:"temp_dir"`
		OutputDir  string `yaml:"output_dir"`
		StatusFile string `yaml:"status_file"`
		Database   string `yaml:"database"`
	} `yaml:"files"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`
}

func main() {
	// Load .env first so the config can reference env vars (ASR key).
	_ = godotenv.Load()

	config, err := loadConfig("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ensure directories exist
	if err := cleanup.EnsureDir(config.Files.TempDir); err != nil {
		log.Fatalf("Failed to create temp directory: %v", err)
	}
	if err := cleanup.EnsureDir(config.Files.OutputDir); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	// Logger setup: stdout + in-memory ring + rotating file
	logBuffer := &LogBuffer{
		lines: make([]string, 0, 1000),
	}
	writers := []io.Writer{os.Stdout, logBuffer}
	if config.Logging.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.Logging.File,
			MaxSize:    config.Logging.MaxSizeMB,
			MaxBackups: config.Logging.MaxBackups,
			MaxAge:     config.Logging.MaxAgeDays,
			Compress:   true,
		})
	}
	log.SetOutput(io.MultiWriter(writers...))

	log.Println("Initializing components...")

	// Remote file store client
	media := mediastore.NewClient(
		config.MediaStore.BaseURL,
		time.Duration(config.MediaStore.TimeoutSeconds)*time.Second,
	)

	// Audio extractor (ffmpeg)
	extractor := extract.NewExtractor(
		config.Files.TempDir,
		config.Audio.SampleRate,
		config.Audio.Channels,
	)

	// Transcription client
	transcriber := asr.NewClient(asr.Config{
		APIKey:       os.Getenv(config.ASR.APIKeyEnv),
		Model:        config.ASR.Model,
		MaxWait:      time.Duration(config.ASR.MaxWaitSeconds) * time.Second,
		PollInterval: time.Duration(config.ASR.PollIntervalSeconds) * time.Second,
	})

	// Status store
	statusStore, err := status.NewStore(config.Files.StatusFile)
	if err != nil {
		log.Fatalf("Failed to open status store: %v", err)
	}

	// Transcript persistence
	transcripts := storage.NewTranscriptStore(config.Files.OutputDir)

	// Transcript metadata index
	db, err := storage.NewMetadataDB(config.Files.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Google Drive mirror (optional - may fail if credentials not set up)
	var driveClient *storage.DriveClient
	if _, err := os.Stat(config.GoogleDrive.CredentialsFile); err == nil {
		driveClient, err = storage.NewDriveClient(
			config.GoogleDrive.CredentialsFile,
			config.GoogleDrive.TokenFile,
			config.GoogleDrive.FolderName,
		)
		if err != nil {
			log.Printf("WARNING: Google Drive not available: %v", err)
			log.Println("Transcripts will only be saved locally")
			driveClient = nil
		} else {
			log.Println("Google Drive mirror enabled")
		}
	} else {
		log.Println("Google Drive credentials not found - saving locally only")
	}

	// Progress event hub
	hub := progress.NewHub()

	// Processing pipeline
	processor := pipeline.NewProcessor(pipeline.Config{
		Media:       media,
		Extractor:   extractor,
		Transcriber: transcriber,
		Status:      statusStore,
		Transcripts: transcripts,
		Metadata:    db,
		Drive:       driveClient,
		Hub:         hub,
		Mode:        pipeline.Mode(config.Pipeline.Mode),
		TempDir:     config.Files.TempDir,
		VideoSuffix: config.Pipeline.VideoSuffix,
		AudioSuffix: config.Pipeline.AudioSuffix,
	})
	runner := pipeline.NewRunner(processor, hub)

	// Temp sweeper
	sweeper := cleanup.NewScheduler(
		config.Files.TempDir,
		time.Duration(config.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(config.Cleanup.MaxAgeHours)*time.Hour,
	)
	sweeper.Start()
	defer sweeper.Stop()

	// Create Fiber app
	app := fiber.New()

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	// Initialize handlers
	processHandler := handlers.NewProcessHandler(runner)
	videosHandler := handlers.NewVideosHandler(statusStore, transcripts)
	progressHandler := handlers.NewProgressHandler(hub)

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	app.Post("/api/process", processHandler.HandleSync)
	app.Post("/api/process/async", processHandler.HandleAsync)
	app.Get("/api/process/status", processHandler.HandleRunStatus)

	app.Get("/api/videos", videosHandler.HandleList)
	app.Get("/api/videos/:id/result", videosHandler.HandleResult)
	app.Get("/api/stats", videosHandler.HandleStats)

	// Transcript metadata index
	app.Get("/api/transcripts", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 50)
		rows, err := db.List(limit)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"success": true, "transcripts": rows})
	})

	// WebSocket progress stream
	app.Get("/ws/progress", websocket.New(progressHandler.Handle))

	// Prometheus metrics
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Get server logs
	app.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": logBuffer.GetLogs(),
		})
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	log.Printf("Server starting on %s (pipeline mode: %s)", addr, config.Pipeline.Mode)
	log.Println("Endpoints:")
	log.Println("   POST /api/process           - Run full batch synchronously")
	log.Println("   POST /api/process/async     - Run full batch in background")
	log.Println("   GET  /api/process/status    - Current/last run status")
	log.Println("   GET  /api/videos            - List tracked videos")
	log.Println("   GET  /api/videos/:id/result - Get processing result")
	log.Println("   GET  /api/stats             - Aggregate statistics")
	log.Println("   GET  /api/transcripts       - Transcript metadata index")
	log.Println("   GET  /ws/progress           - WebSocket progress stream")
	log.Println("   GET  /metrics               - Prometheus metrics")
	log.Println("   GET  /logs                  - View server logs")
	log.Println("   GET  /health                - Health check")

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down gracefully...")
		app.Shutdown()
	}()

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// LogBuffer captures logs in memory
type LogBuffer struct {
	lines []string
	mu    sync.Mutex
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.lines = append(lb.lines, string(p))

	// Keep last 1000 lines
	if len(lb.lines) > 1000 {
		lb.lines = lb.lines[len(lb.lines)-1000:]
	}

	return len(p), nil
}

func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}

// loadConfig loads configuration from YAML file
func loadConfig(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
