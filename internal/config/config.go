// Package config loads moodsense settings from defaults, an optional YAML file,
// MOODSENSE_* environment variables and command-line flags, in rising priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	BackendWorker = "worker"
	BackendHTTP   = "http"
)

type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type DB struct {
	URL string `mapstructure:"url" yaml:"url"`
}

type Camera struct {
	Format         string        `mapstructure:"format" yaml:"format"`
	Device         string        `mapstructure:"device" yaml:"device"`
	FPS            float64       `mapstructure:"fps" yaml:"fps"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout"`
	LockDir        string        `mapstructure:"lock_dir" yaml:"lock_dir"`
}

type Classifier struct {
	Backend string        `mapstructure:"backend" yaml:"backend"`
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Python  string        `mapstructure:"python" yaml:"python"`
	Script  string        `mapstructure:"script" yaml:"script"`
}

type Sampling struct {
	Budget      time.Duration `mapstructure:"budget" yaml:"budget"`
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
	StopTimeout time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
}

type Capture struct {
	Duration time.Duration `mapstructure:"duration" yaml:"duration"`
}

type Questions struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Count   int           `mapstructure:"count" yaml:"count"`
}

type Output struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

type Student struct {
	ID    string `mapstructure:"id" yaml:"id"`
	Grade string `mapstructure:"grade" yaml:"grade"`
}

// Config is the effective configuration of one run.
type Config struct {
	Log        Log        `mapstructure:"log" yaml:"log"`
	DB         DB         `mapstructure:"db" yaml:"db"`
	Camera     Camera     `mapstructure:"camera" yaml:"camera"`
	Classifier Classifier `mapstructure:"classifier" yaml:"classifier"`
	Sampling   Sampling   `mapstructure:"sampling" yaml:"sampling"`
	Capture    Capture    `mapstructure:"capture" yaml:"capture"`
	Questions  Questions  `mapstructure:"questions" yaml:"questions"`
	Output     Output     `mapstructure:"output" yaml:"output"`
	Student    Student    `mapstructure:"student" yaml:"student"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-"`
}

// FlagKeys maps command-line flag names onto config keys.
var FlagKeys = map[string]string{
	"db":         "db.url",
	"log-level":  "log.level",
	"log-format": "log.format",
	"output":     "output.dir",
}

// Load reads the configuration. path forces a specific file; otherwise moodsense.yaml
// is looked up in the working directory and $HOME/.config/moodsense. Flags named in
// FlagKeys override everything else when they were set explicitly.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MOODSENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("moodsense")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "moodsense"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	format, device := defaultCamera()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("db.url", "")
	v.SetDefault("camera.format", format)
	v.SetDefault("camera.device", device)
	v.SetDefault("camera.fps", 2.0)
	v.SetDefault("camera.startup_timeout", 5*time.Second)
	v.SetDefault("camera.lock_dir", filepath.Join(os.TempDir(), "moodsense"))
	v.SetDefault("classifier.backend", BackendWorker)
	v.SetDefault("classifier.url", "http://localhost:5000")
	v.SetDefault("classifier.timeout", 10*time.Second)
	v.SetDefault("classifier.python", "python3")
	v.SetDefault("classifier.script", "python/emotion_worker.py")
	v.SetDefault("sampling.budget", 120*time.Second)
	v.SetDefault("sampling.interval", 500*time.Millisecond)
	v.SetDefault("sampling.stop_timeout", 3*time.Second)
	v.SetDefault("capture.duration", 10*time.Second)
	v.SetDefault("questions.url", "http://localhost:3000/api")
	v.SetDefault("questions.timeout", 60*time.Second)
	v.SetDefault("questions.count", 5)
	v.SetDefault("output.dir", ".")
	v.SetDefault("student.id", "student_001")
	v.SetDefault("student.grade", "10")
}

// defaultCamera picks the FFmpeg capture device for the host OS.
func defaultCamera() (format, device string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", "0"
	case "windows":
		return "dshow", "video=Integrated Camera"
	default:
		return "v4l2", "/dev/video0"
	}
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Sampling.Budget <= 0 {
		errs = append(errs, fmt.Errorf("sampling.budget must be positive, got %s", c.Sampling.Budget))
	}
	if c.Sampling.Interval < 0 {
		errs = append(errs, fmt.Errorf("sampling.interval must not be negative, got %s", c.Sampling.Interval))
	}
	if c.Sampling.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sampling.stop_timeout must be positive, got %s", c.Sampling.StopTimeout))
	}
	if c.Capture.Duration <= 0 {
		errs = append(errs, fmt.Errorf("capture.duration must be positive, got %s", c.Capture.Duration))
	}
	if c.Camera.FPS <= 0 {
		errs = append(errs, fmt.Errorf("camera.fps must be positive, got %v", c.Camera.FPS))
	}
	switch c.Classifier.Backend {
	case BackendWorker, BackendHTTP:
	default:
		errs = append(errs, fmt.Errorf("classifier.backend must be %q or %q, got %q", BackendWorker, BackendHTTP, c.Classifier.Backend))
	}
	if c.Questions.Count < 1 {
		errs = append(errs, fmt.Errorf("questions.count must be at least 1, got %d", c.Questions.Count))
	}
	return errors.Join(errs...)
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
