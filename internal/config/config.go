package config

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Brownie44l1/flood-api/internal/analysis"
	"github.com/Brownie44l1/flood-api/internal/overlay"
	"github.com/Brownie44l1/flood-api/internal/summary"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Upload       UploadConfig       `mapstructure:"upload"`
	Models       ModelsConfig       `mapstructure:"models"`
	Inference    InferenceConfig    `mapstructure:"inference"`
	Presentation PresentationConfig `mapstructure:"presentation"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type UploadConfig struct {
	MaxSize           int64    `mapstructure:"max_size"`
	MaxPixels         int64    `mapstructure:"max_pixels"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

type ModelsConfig struct {
	UNetPath    string  `mapstructure:"unet_path"`
	UNetPPPath  string  `mapstructure:"unetpp_path"`
	LibraryPath string  `mapstructure:"library_path"`
	InputName   string  `mapstructure:"input_name"`
	OutputName  string  `mapstructure:"output_name"`
	Threshold   float64 `mapstructure:"threshold"`
}

type InferenceConfig struct {
	MaxConcurrent int64         `mapstructure:"max_concurrent"`
	QueueTimeout  time.Duration `mapstructure:"queue_timeout"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type OverlayConfig struct {
	Color []int   `mapstructure:"color"`
	Alpha float64 `mapstructure:"alpha"`
}

type PresentationConfig struct {
	UNet             OverlayConfig `mapstructure:"unet"`
	UNetPP           OverlayConfig `mapstructure:"unetpp"`
	Disagreement     OverlayConfig `mapstructure:"disagreement"`
	LowDisagreement  float64       `mapstructure:"low_disagreement"`
	HighDisagreement float64       `mapstructure:"high_disagreement"`
}

// Load reads .env, the optional YAML file at configPath and the environment,
// in increasing order of precedence. A missing config file is not an error.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FLOOD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindings := map[string]string{
		"server.port":         "PORT",
		"models.unet_path":    "MODEL_PATH_UNET",
		"models.unetpp_path":  "MODEL_PATH_UNETPP",
		"models.library_path": "ONNXRUNTIME_LIB",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, "FLOOD_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("upload.max_size", 10*1024*1024)
	v.SetDefault("upload.max_pixels", 178956970)
	v.SetDefault("upload.allowed_extensions", []string{".jpg", ".jpeg", ".png"})

	v.SetDefault("models.unet_path", "./models_weights/unet_baseline_best.onnx")
	v.SetDefault("models.unetpp_path", "./models_weights/unetplus.onnx")
	v.SetDefault("models.library_path", "")
	v.SetDefault("models.input_name", "input")
	v.SetDefault("models.output_name", "output")
	v.SetDefault("models.threshold", 0.5)

	v.SetDefault("inference.max_concurrent", 2)
	v.SetDefault("inference.queue_timeout", 30*time.Second)
	v.SetDefault("inference.timeout", 60*time.Second)

	v.SetDefault("presentation.unet.color", []int{255, 0, 0})
	v.SetDefault("presentation.unet.alpha", 0.4)
	v.SetDefault("presentation.unetpp.color", []int{0, 100, 255})
	v.SetDefault("presentation.unetpp.alpha", 0.4)
	v.SetDefault("presentation.disagreement.color", []int{150, 0, 255})
	v.SetDefault("presentation.disagreement.alpha", 0.5)
	v.SetDefault("presentation.low_disagreement", 5.0)
	v.SetDefault("presentation.high_disagreement", 15.0)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	if strings.Contains(c.Server.Port, ":") {
		return c.Server.Port
	}
	return ":" + c.Server.Port
}

func (c *Config) Validate() error {
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be debug, release or test, got %q", c.Server.Mode)
	}
	if c.Upload.MaxSize <= 0 {
		return fmt.Errorf("upload.max_size must be positive")
	}
	if c.Upload.MaxPixels <= 0 {
		return fmt.Errorf("upload.max_pixels must be positive")
	}
	if c.Models.UNetPath == "" || c.Models.UNetPPPath == "" {
		return fmt.Errorf("both model paths must be set")
	}
	if c.Models.Threshold <= 0 || c.Models.Threshold >= 1 {
		return fmt.Errorf("models.threshold must be in (0,1), got %v", c.Models.Threshold)
	}
	if _, err := c.Styles(); err != nil {
		return err
	}
	return c.Policy().Validate()
}

func (c *Config) Policy() summary.Policy {
	return summary.Policy{
		Low:  c.Presentation.LowDisagreement,
		High: c.Presentation.HighDisagreement,
	}
}

func (c *Config) Styles() (analysis.Styles, error) {
	unet, err := c.Presentation.UNet.style("unet")
	if err != nil {
		return analysis.Styles{}, err
	}
	unetpp, err := c.Presentation.UNetPP.style("unetpp")
	if err != nil {
		return analysis.Styles{}, err
	}
	disagreement, err := c.Presentation.Disagreement.style("disagreement")
	if err != nil {
		return analysis.Styles{}, err
	}
	return analysis.Styles{UNet: unet, UNetPP: unetpp, Disagreement: disagreement}, nil
}

func (o OverlayConfig) style(name string) (overlay.Style, error) {
	if len(o.Color) != 3 {
		return overlay.Style{}, fmt.Errorf("presentation.%s.color needs 3 channels, got %d", name, len(o.Color))
	}
	for _, ch := range o.Color {
		if ch < 0 || ch > 255 {
			return overlay.Style{}, fmt.Errorf("presentation.%s.color channel %d out of range", name, ch)
		}
	}
	if o.Alpha < 0 || o.Alpha > 1 {
		return overlay.Style{}, fmt.Errorf("presentation.%s.alpha must be within [0,1], got %v", name, o.Alpha)
	}
	return overlay.Style{
		Color: color.RGBA{R: uint8(o.Color[0]), G: uint8(o.Color[1]), B: uint8(o.Color[2]), A: 255},
		Alpha: o.Alpha,
	}, nil
}
