package config

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/platescan/internal/models"
	"github.com/MeKo-Tech/platescan/internal/pipeline"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestLoader() *Loader { return NewLoaderWithViper(viper.New()) }

func writeYAML(t *testing.T, v any) string {
	t.Helper()
	data, err := yaml.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "platescan.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, models.DefaultModelsDir, cfg.ModelsDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 640, cfg.Pipeline.Detector.InputSize)
	assert.InDelta(t, 0.25, cfg.Pipeline.Detector.ConfThreshold, 1e-9)
	assert.InDelta(t, 0.7, cfg.Pipeline.Detector.NMSThreshold, 1e-9)
	assert.Equal(t, "eng", cfg.Pipeline.Recognizer.Language)
	assert.Equal(t, "avc1", cfg.Video.Codec)
	assert.Equal(t, 200, cfg.Server.MaxUploadMB)
	assert.True(t, cfg.Server.SweepOnStart)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
		{"conf threshold", func(c *Config) { c.Pipeline.Detector.ConfThreshold = 1.5 }, "detector.conf_threshold"},
		{"nms threshold", func(c *Config) { c.Pipeline.Detector.NMSThreshold = -0.1 }, "detector.nms_threshold"},
		{"input size", func(c *Config) { c.Pipeline.Detector.InputSize = 100 }, "input size"},
		{"threads", func(c *Config) { c.Pipeline.Detector.NumThreads = -1 }, "threads"},
		{"language", func(c *Config) { c.Pipeline.Recognizer.Language = "" }, "language"},
		{"box color", func(c *Config) { c.Annotate.BoxColor = "green" }, "box_color"},
		{"text color", func(c *Config) { c.Annotate.TextColor = "#12" }, "text_color"},
		{"thickness", func(c *Config) { c.Annotate.Thickness = 0 }, "thickness"},
		{"codec", func(c *Config) { c.Video.Codec = "h264x" }, "FourCC"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "server port"},
		{"upload", func(c *Config) { c.Server.MaxUploadMB = 0 }, "upload"},
		{"timeout", func(c *Config) { c.Server.TimeoutSec = 0 }, "timeout"},
		{"shutdown", func(c *Config) { c.Server.ShutdownTimeout = -1 }, "shutdown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSub)
		})
	}
}

func TestToPipelineConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, models.TypeTessdata), 0o755))

	cfg := DefaultConfig()
	cfg.ModelsDir = dir
	cfg.Pipeline.Detector.ConfThreshold = 0.4
	cfg.Pipeline.Detector.NumThreads = 3
	cfg.Pipeline.Recognizer.Language = "deu"
	cfg.Annotate.BoxColor = "#0000FF"
	cfg.Annotate.Thickness = 3
	cfg.Video.Codec = "mp4v"
	cfg.Video.TempDir = dir

	pc := cfg.ToPipelineConfig()
	assert.Equal(t, dir, pc.ModelsDir)
	assert.Equal(t, filepath.Join(dir, models.PlateDetector), pc.Detector.ModelPath)
	assert.InDelta(t, 0.4, pc.Detector.ConfThreshold, 1e-9)
	assert.Equal(t, 3, pc.Detector.NumThreads)
	assert.Equal(t, filepath.Join(dir, models.TypeTessdata), pc.Recognizer.TessdataPrefix)
	assert.Equal(t, "deu", pc.Recognizer.Language)
	assert.Equal(t, color.RGBA{B: 255, A: 255}, pc.Style.BoxColor)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, pc.Style.TextColor)
	assert.Equal(t, 3, pc.Style.Thickness)
	assert.Equal(t, pipeline.VideoConfig{Codec: "mp4v", TempDir: dir}, pc.Video)
}

func TestToPipelineConfig_ExplicitPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.Detector.ModelPath = "/opt/models/lp.onnx"
	cfg.Pipeline.Recognizer.TessdataPrefix = "/usr/share/tessdata"
	cfg.Annotate.TextColor = "nope"

	pc := cfg.ToPipelineConfig()
	assert.Equal(t, "/opt/models/lp.onnx", pc.Detector.ModelPath)
	assert.Equal(t, "/usr/share/tessdata", pc.Recognizer.TessdataPrefix)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, pc.Style.TextColor, "unparsable color keeps the default")
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := newTestLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *cfg)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeYAML(t, map[string]any{
		"log_level":  "debug",
		"models_dir": "/custom/models",
		"pipeline": map[string]any{
			"detector":   map[string]any{"conf_threshold": 0.5, "num_threads": 2},
			"recognizer": map[string]any{"language": "deu"},
		},
		"video":  map[string]any{"codec": "mp4v", "temp_dir": "/var/tmp/plates"},
		"server": map[string]any{"port": 9090, "max_upload_mb": 50, "sweep_on_start": false},
	})

	loader := newTestLoader()
	cfg, err := loader.LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, loader.GetConfigFileUsed())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/custom/models", cfg.ModelsDir)
	assert.InDelta(t, 0.5, cfg.Pipeline.Detector.ConfThreshold, 1e-9)
	assert.InDelta(t, 0.7, cfg.Pipeline.Detector.NMSThreshold, 1e-9, "unset keys keep defaults")
	assert.Equal(t, 2, cfg.Pipeline.Detector.NumThreads)
	assert.Equal(t, "deu", cfg.Pipeline.Recognizer.Language)
	assert.Equal(t, "mp4v", cfg.Video.Codec)
	assert.Equal(t, "/var/tmp/plates", cfg.Video.TempDir)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Server.MaxUploadMB)
	assert.False(t, cfg.Server.SweepOnStart)
}

func TestLoad_SearchPath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "platescan.yaml"), []byte("server:\n  port: 7070\n"), 0o600))

	cfg, err := newTestLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PLATESCAN_SERVER_PORT", "9191")
	t.Setenv("PLATESCAN_PIPELINE_DETECTOR_MODEL_PATH", "/env/model.onnx")
	t.Setenv("PLATESCAN_VIDEO_TEMP_DIR", "/env/tmp")

	cfg, err := newTestLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "/env/model.onnx", cfg.Pipeline.Detector.ModelPath)
	assert.Equal(t, "/env/tmp", cfg.Video.TempDir)
}

func TestLoad_Errors(t *testing.T) {
	_, err := newTestLoader().LoadWithFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("server: [unclosed"), 0o600))
	_, err = newTestLoader().LoadWithFile(bad)
	require.Error(t, err)

	invalid := writeYAML(t, map[string]any{"log_level": "loud"})
	_, err = newTestLoader().LoadWithFile(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")

	cfg, err := newTestLoader().LoadWithFileWithoutValidation(invalid)
	require.NoError(t, err)
	assert.Equal(t, "loud", cfg.LogLevel)
}

func TestGenerateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platescan.yaml")
	require.NoError(t, GenerateDefaultConfigFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.Contains(t, raw, "pipeline")
	assert.Contains(t, raw, "server")

	cfg, err := newTestLoader().LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *cfg)
}

func TestGetConfigSearchPaths(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	paths := GetConfigSearchPaths()
	assert.Equal(t, ".", paths[0])
	assert.Contains(t, paths, filepath.Join(xdg, "platescan"))
	assert.Equal(t, "/etc/platescan", paths[len(paths)-1])
}
