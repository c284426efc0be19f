package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	DB          DBConfig          `mapstructure:"db"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	Video       VideoConfig       `mapstructure:"video"`
	Gallery     GalleryConfig     `mapstructure:"gallery"`
	OpenCV      OpenCVConfig      `mapstructure:"opencv"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Cleanup     CleanupConfig     `mapstructure:"cleanup"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	I18n        I18nConfig        `mapstructure:"i18n"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	DataDir        string   `mapstructure:"data_dir"`
	UploadDir      string   `mapstructure:"upload_dir"`
	MaxUploadMB    int      `mapstructure:"max_upload_mb"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	SessionSecret  string   `mapstructure:"session_secret"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig holds database settings. Only SQLite is supported.
type DBConfig struct {
	File string `mapstructure:"file"`
}

// RecognitionConfig holds the operating points of the still-image and per-frame
// recognition pipeline.
type RecognitionConfig struct {
	ImageDetectThreshold   float64 `mapstructure:"image_detect_threshold"`
	VideoDetectThreshold   float64 `mapstructure:"video_detect_threshold"`
	MatchDistanceThreshold float64 `mapstructure:"match_distance_threshold"`
	ImageMinConfidence     float64 `mapstructure:"image_min_confidence"`
	ImageMargin            float64 `mapstructure:"image_margin"`
	VideoMargin            float64 `mapstructure:"video_margin"`
	CropSize               int     `mapstructure:"crop_size"`
	MaxFrameDimension      int     `mapstructure:"max_frame_dimension"`
	ParallelComparisons    int     `mapstructure:"parallel_comparisons"`
}

// VideoConfig holds the per-request defaults for video recognition.
type VideoConfig struct {
	MinConfidence            float64 `mapstructure:"min_confidence"`
	FrameInterval            int     `mapstructure:"frame_interval"`
	MaxFrames                int     `mapstructure:"max_frames"`
	TimeoutSeconds           int     `mapstructure:"timeout_seconds"`
	Policy                   string  `mapstructure:"policy"`
	ExhaustiveMinScore       float64 `mapstructure:"exhaustive_min_score"`
	ExhaustiveMinDetections  int     `mapstructure:"exhaustive_min_detections"`
	ExhaustiveDetectionRate  float64 `mapstructure:"exhaustive_detection_rate"`
}

// Timeout returns the configured per-request timeout.
func (v VideoConfig) Timeout() time.Duration {
	return time.Duration(v.TimeoutSeconds) * time.Second
}

// GalleryConfig holds settings for the reference face gallery.
type GalleryConfig struct {
	Dir                   string  `mapstructure:"dir"`
	RegisterMinConfidence float64 `mapstructure:"register_min_confidence"`
	CacheSize             int     `mapstructure:"cache_size"`
}

// OpenCVConfig holds settings for the OpenCV detector and embedding models.
type OpenCVConfig struct {
	Enabled             bool    `mapstructure:"enabled"`
	DetectorModel       string  `mapstructure:"detector_model"`  // YuNet ONNX file
	RecognizerModel     string  `mapstructure:"recognizer_model"` // SFace ONNX file
	DetectorScoreFloor  float64 `mapstructure:"detector_score_floor"`
	NMSThreshold        float64 `mapstructure:"nms_threshold"`
	TopK                int     `mapstructure:"top_k"`
	Backend             string  `mapstructure:"backend"` // "default", "cuda", "opencl"
	Target              string  `mapstructure:"target"`  // "cpu", "cuda", "opencl"
	FeatureCacheSize    int     `mapstructure:"feature_cache_size"`
}

// MQTTConfig holds settings for publishing attendance events.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
	Retain   bool   `mapstructure:"retain"`
}

// CleanupConfig holds settings for automatic data cleanup.
type CleanupConfig struct {
	RetentionDays        int `mapstructure:"retention_days"`
	IntervalMinutes      int `mapstructure:"interval_minutes"`
	UploadMaxAgeMinutes  int `mapstructure:"upload_max_age_minutes"`
}

// WorkerConfig bounds concurrent recognition jobs.
type WorkerConfig struct {
	Count     int `mapstructure:"count"` // 0 = derived from CPU count
	QueueSize int `mapstructure:"queue_size"`
}

// I18nConfig holds localization settings.
type I18nConfig struct {
	DefaultLanguage string `mapstructure:"default_language"`
}

// Load reads configuration from defaults, an optional file and the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Environment overrides, e.g. ATTENDANCE_VIDEO_MAX_FRAMES=60
	v.SetEnvPrefix("ATTENDANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers default values for every known key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.data_dir", "/data")
	v.SetDefault("server.upload_dir", "/data/uploads")
	v.SetDefault("server.max_upload_mb", 64)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.session_secret", "change-me")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "/data/logs/attendance.log")

	v.SetDefault("db.file", "/data/attendance.db")

	v.SetDefault("recognition.image_detect_threshold", 0.85)
	v.SetDefault("recognition.video_detect_threshold", 0.80)
	v.SetDefault("recognition.match_distance_threshold", 0.65)
	v.SetDefault("recognition.image_min_confidence", 0.65)
	v.SetDefault("recognition.image_margin", 0.10)
	v.SetDefault("recognition.video_margin", 0.20)
	v.SetDefault("recognition.crop_size", 224)
	v.SetDefault("recognition.max_frame_dimension", 800)
	v.SetDefault("recognition.parallel_comparisons", 4)

	v.SetDefault("video.min_confidence", 0.60)
	v.SetDefault("video.frame_interval", 1)
	v.SetDefault("video.max_frames", 30)
	v.SetDefault("video.timeout_seconds", 10)
	v.SetDefault("video.policy", "first_match")
	v.SetDefault("video.exhaustive_min_score", 0.45)
	v.SetDefault("video.exhaustive_min_detections", 2)
	v.SetDefault("video.exhaustive_detection_rate", 0.05)

	v.SetDefault("gallery.dir", "/data/gallery")
	v.SetDefault("gallery.register_min_confidence", 0.98)
	v.SetDefault("gallery.cache_size", 512)

	v.SetDefault("opencv.enabled", true)
	v.SetDefault("opencv.detector_model", "models/face_detection_yunet_2023mar.onnx")
	v.SetDefault("opencv.recognizer_model", "models/face_recognition_sface_2021dec.onnx")
	v.SetDefault("opencv.detector_score_floor", 0.5)
	v.SetDefault("opencv.nms_threshold", 0.3)
	v.SetDefault("opencv.top_k", 5000)
	v.SetDefault("opencv.backend", "default")
	v.SetDefault("opencv.target", "cpu")
	v.SetDefault("opencv.feature_cache_size", 1024)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "face-attendance")
	v.SetDefault("mqtt.topic", "attendance/events")
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("cleanup.retention_days", 30)
	v.SetDefault("cleanup.interval_minutes", 60)
	v.SetDefault("cleanup.upload_max_age_minutes", 60)

	v.SetDefault("worker.count", 0)
	v.SetDefault("worker.queue_size", 16)

	v.SetDefault("i18n.default_language", "en")
}

// Validate rejects operating points outside their meaningful range.
func (c *Config) Validate() error {
	var errs []error
	unit := func(name string, val float64) {
		if val < 0 || val > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", name, val))
		}
	}
	unit("recognition.image_detect_threshold", c.Recognition.ImageDetectThreshold)
	unit("recognition.video_detect_threshold", c.Recognition.VideoDetectThreshold)
	unit("recognition.image_min_confidence", c.Recognition.ImageMinConfidence)
	unit("recognition.image_margin", c.Recognition.ImageMargin)
	unit("recognition.video_margin", c.Recognition.VideoMargin)
	unit("video.min_confidence", c.Video.MinConfidence)
	unit("video.exhaustive_min_score", c.Video.ExhaustiveMinScore)
	unit("video.exhaustive_detection_rate", c.Video.ExhaustiveDetectionRate)
	unit("gallery.register_min_confidence", c.Gallery.RegisterMinConfidence)

	if c.Recognition.MatchDistanceThreshold <= 0 {
		errs = append(errs, fmt.Errorf("recognition.match_distance_threshold must be positive"))
	}
	if c.Recognition.CropSize <= 0 {
		errs = append(errs, fmt.Errorf("recognition.crop_size must be positive"))
	}
	if c.Video.MaxFrames <= 0 {
		errs = append(errs, fmt.Errorf("video.max_frames must be positive"))
	}
	if c.Video.FrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("video.frame_interval must be positive"))
	}
	if c.Video.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("video.timeout_seconds must be positive"))
	}
	switch c.Video.Policy {
	case "first_match", "exhaustive":
	default:
		errs = append(errs, fmt.Errorf("video.policy must be first_match or exhaustive, got %q", c.Video.Policy))
	}
	return errors.Join(errs...)
}

// ensureDirectories creates the directories the service writes into.
func ensureDirectories(cfg *Config) error {
	dirs := []string{cfg.Server.DataDir, cfg.Server.UploadDir, cfg.Gallery.Dir}
	if cfg.Log.File != "" {
		dirs = append(dirs, filepath.Dir(cfg.Log.File))
	}
	if cfg.DB.File != "" && !strings.HasPrefix(cfg.DB.File, "file::memory:") {
		dirs = append(dirs, filepath.Dir(cfg.DB.File))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
