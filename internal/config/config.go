package config

import (
	"fmt"
	"strings"

	"github.com/MeKo-Tech/platescan/internal/annotate"
	"github.com/MeKo-Tech/platescan/internal/detector"
	"github.com/MeKo-Tech/platescan/internal/models"
	"github.com/MeKo-Tech/platescan/internal/pipeline"
	"github.com/MeKo-Tech/platescan/internal/recognizer"
)

// Config represents the complete configuration for platescan.
// It is loaded from configuration files, environment variables, and command-line flags.
//
//nolint:lll
type Config struct {
	// Global settings
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`
	Annotate AnnotateConfig `mapstructure:"annotate" yaml:"annotate" json:"annotate"`
	Video    VideoConfig    `mapstructure:"video" yaml:"video" json:"video"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server" json:"server"`
}

// PipelineConfig contains detection and recognition settings.
type PipelineConfig struct {
	Detector   DetectorConfig   `mapstructure:"detector" yaml:"detector" json:"detector"`
	Recognizer RecognizerConfig `mapstructure:"recognizer" yaml:"recognizer" json:"recognizer"`
}

// DetectorConfig contains plate detection settings.
//
//nolint:lll
type DetectorConfig struct {
	ModelPath     string  `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	LibraryPath   string  `mapstructure:"library_path" yaml:"library_path" json:"library_path"`
	InputSize     int     `mapstructure:"input_size" yaml:"input_size" json:"input_size"`
	ConfThreshold float64 `mapstructure:"conf_threshold" yaml:"conf_threshold" json:"conf_threshold"`
	NMSThreshold  float64 `mapstructure:"nms_threshold" yaml:"nms_threshold" json:"nms_threshold"`
	NumThreads    int     `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}

// RecognizerConfig contains OCR settings.
type RecognizerConfig struct {
	TessdataPrefix string `mapstructure:"tessdata_prefix" yaml:"tessdata_prefix" json:"tessdata_prefix"`
	Language       string `mapstructure:"language" yaml:"language" json:"language"`
}

// AnnotateConfig controls box and label drawing.
type AnnotateConfig struct {
	BoxColor  string `mapstructure:"box_color" yaml:"box_color" json:"box_color"`
	TextColor string `mapstructure:"text_color" yaml:"text_color" json:"text_color"`
	Thickness int    `mapstructure:"thickness" yaml:"thickness" json:"thickness"`
}

// VideoConfig contains video output and temp file settings.
type VideoConfig struct {
	Codec   string `mapstructure:"codec" yaml:"codec" json:"codec"`
	TempDir string `mapstructure:"temp_dir" yaml:"temp_dir" json:"temp_dir"`
}

// ServerConfig contains HTTP server settings.
//
//nolint:lll
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	SweepOnStart    bool   `mapstructure:"sweep_on_start" yaml:"sweep_on_start" json:"sweep_on_start"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	det := detector.DefaultConfig()
	rec := recognizer.DefaultConfig()
	return Config{
		ModelsDir: models.DefaultModelsDir,
		LogLevel:  "info",
		Verbose:   false,
		Pipeline: PipelineConfig{
			Detector: DetectorConfig{
				InputSize:     det.InputSize,
				ConfThreshold: det.ConfThreshold,
				NMSThreshold:  det.NMSThreshold,
				NumThreads:    det.NumThreads,
			},
			Recognizer: RecognizerConfig{
				Language: rec.Language,
			},
		},
		Annotate: AnnotateConfig{
			BoxColor:  "#00FF00",
			TextColor: "#FF0000",
			Thickness: 2,
		},
		Video: VideoConfig{
			Codec: pipeline.DefaultCodec,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     200,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			SweepOnStart:    true,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if err := validateThreshold(c.Pipeline.Detector.ConfThreshold, "detector.conf_threshold"); err != nil {
		return err
	}
	if err := validateThreshold(c.Pipeline.Detector.NMSThreshold, "detector.nms_threshold"); err != nil {
		return err
	}
	if c.Pipeline.Detector.InputSize <= 0 || c.Pipeline.Detector.InputSize%32 != 0 {
		return fmt.Errorf("invalid detector input size: %d (must be a positive multiple of 32)", c.Pipeline.Detector.InputSize)
	}
	if c.Pipeline.Detector.NumThreads < 0 {
		return fmt.Errorf("invalid detector threads: %d (must not be negative)", c.Pipeline.Detector.NumThreads)
	}
	if c.Pipeline.Recognizer.Language == "" {
		return fmt.Errorf("recognizer language must not be empty")
	}

	if _, err := annotate.ParseHexColor(c.Annotate.BoxColor); err != nil {
		return fmt.Errorf("invalid annotate.box_color: %w", err)
	}
	if _, err := annotate.ParseHexColor(c.Annotate.TextColor); err != nil {
		return fmt.Errorf("invalid annotate.text_color: %w", err)
	}
	if c.Annotate.Thickness <= 0 {
		return fmt.Errorf("invalid annotate.thickness: %d (must be positive)", c.Annotate.Thickness)
	}

	if len(c.Video.Codec) != 4 {
		return fmt.Errorf("invalid video codec: %q (must be a 4 character FourCC)", c.Video.Codec)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %d (must not be negative)", c.Server.ShutdownTimeout)
	}

	return nil
}

// ToPipelineConfig converts the config to the pipeline configuration.
// Empty model and tessdata paths resolve under ModelsDir.
func (c *Config) ToPipelineConfig() pipeline.Config {
	return pipeline.Config{
		ModelsDir:  models.GetModelsDir(c.ModelsDir),
		Detector:   c.toDetectorConfig(),
		Recognizer: c.toRecognizerConfig(),
		Style:      c.toStyle(),
		Video: pipeline.VideoConfig{
			Codec:   c.Video.Codec,
			TempDir: c.Video.TempDir,
		},
	}
}

func (c *Config) toDetectorConfig() detector.Config {
	cfg := detector.DefaultConfig()
	cfg.ModelPath = c.Pipeline.Detector.ModelPath
	if cfg.ModelPath == "" {
		cfg.UpdateModelPath(c.ModelsDir)
	}
	cfg.LibraryPath = c.Pipeline.Detector.LibraryPath
	if c.Pipeline.Detector.InputSize > 0 {
		cfg.InputSize = c.Pipeline.Detector.InputSize
	}
	cfg.ConfThreshold = c.Pipeline.Detector.ConfThreshold
	cfg.NMSThreshold = c.Pipeline.Detector.NMSThreshold
	cfg.NumThreads = c.Pipeline.Detector.NumThreads
	return cfg
}

func (c *Config) toRecognizerConfig() recognizer.Config {
	cfg := recognizer.DefaultConfig()
	if c.Pipeline.Recognizer.Language != "" {
		cfg.Language = c.Pipeline.Recognizer.Language
	}
	cfg.TessdataPrefix = c.Pipeline.Recognizer.TessdataPrefix
	if cfg.TessdataPrefix == "" {
		cfg.TessdataPrefix = models.GetTessdataDir(c.ModelsDir)
	}
	return cfg
}

// toStyle builds the drawing style. Colors that fail to parse keep their defaults;
// Validate reports them.
func (c *Config) toStyle() annotate.Style {
	style := annotate.DefaultStyle()
	if col, err := annotate.ParseHexColor(c.Annotate.BoxColor); err == nil {
		style.BoxColor = col
	}
	if col, err := annotate.ParseHexColor(c.Annotate.TextColor); err == nil {
		style.TextColor = col
	}
	if c.Annotate.Thickness > 0 {
		style.Thickness = c.Annotate.Thickness
	}
	return style
}

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}
