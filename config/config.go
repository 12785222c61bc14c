package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"raincast/logging"
	"raincast/ml"
)

// EnvPrefix prefixes every environment override, e.g. RAINCAST_HTTP_PORT.
const EnvPrefix = "RAINCAST"

// Config is the settings of both commands.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http" envconfig:"HTTP"`
	Log      logging.Config `yaml:"log" envconfig:"LOG"`
	Database DatabaseConfig `yaml:"database" envconfig:"DATABASE"`
	Data     DataConfig     `yaml:"data" envconfig:"DATA"`
	Training TrainingConfig `yaml:"training" envconfig:"TRAINING"`
	Serving  ServingConfig  `yaml:"serving" envconfig:"SERVING"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout    time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES" validate:"min=1024"`
	AllowedOrigins []string      `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// DatabaseConfig points at the SQLite run log. An empty path disables it.
type DatabaseConfig struct {
	Path string `yaml:"path" envconfig:"PATH"`
}

type DataConfig struct {
	Path        string   `yaml:"path" envconfig:"PATH" validate:"required"`
	Target      string   `yaml:"target" envconfig:"TARGET" validate:"required"`
	DropColumns []string `yaml:"drop_columns" envconfig:"DROP_COLUMNS"`
}

// TrainingConfig drives cmd/train_model.
type TrainingConfig struct {
	ArtifactPath string       `yaml:"artifact_path" envconfig:"ARTIFACT_PATH" validate:"required"`
	CVFolds      int          `yaml:"cv_folds" envconfig:"CV_FOLDS" validate:"min=2"`
	TestRatio    float64      `yaml:"test_ratio" envconfig:"TEST_RATIO" validate:"gt=0,lt=1"`
	Seed         int64        `yaml:"seed" envconfig:"SEED"`
	Threshold    float64      `yaml:"threshold" envconfig:"THRESHOLD" validate:"gt=0,lt=1"`
	Jobs         int          `yaml:"n_jobs" envconfig:"N_JOBS"`
	MaxBin       int          `yaml:"max_bin" envconfig:"MAX_BIN" validate:"min=2,max=256"`
	Grid         ml.ParamGrid `yaml:"grid" envconfig:"GRID"`
}

// ServingConfig drives the prediction server. FixedValues are columns
// filled in for every request instead of asked on the form.
type ServingConfig struct {
	ArtifactPath     string            `yaml:"artifact_path" envconfig:"ARTIFACT_PATH" validate:"required"`
	FixedValues      map[string]string `yaml:"fixed_values" envconfig:"FIXED_VALUES"`
	CacheSize        int               `yaml:"cache_size" envconfig:"CACHE_SIZE" validate:"min=0"`
	WatchArtifact    bool              `yaml:"watch_artifact" envconfig:"WATCH_ARTIFACT"`
	AuditPredictions bool              `yaml:"audit_predictions" envconfig:"AUDIT_PREDICTIONS"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:         8501,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 64 << 10,
		},
		Log: logging.DefaultConfig(),
		Data: DataConfig{
			Path:        "weatherAUS.csv",
			Target:      "RainTomorrow",
			DropColumns: []string{"Date"},
		},
		Training: TrainingConfig{
			ArtifactPath: "rain_model_pipeline.json.gz",
			CVFolds:      5,
			TestRatio:    0.2,
			Seed:         42,
			Threshold:    0.5,
			Jobs:         -1,
			MaxBin:       255,
			Grid:         ml.DefaultParamGrid(),
		},
		Serving: ServingConfig{
			ArtifactPath:  "rain_model_pipeline.json.gz",
			FixedValues:   map[string]string{"Location": "Melbourne"},
			CacheSize:     1024,
			WatchArtifact: true,
		},
	}
}

// Load starts from Default, overlays the YAML file at path (skipped when path
// is empty), loads .env if present, applies RAINCAST_* environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		var keys struct {
			Serving map[string]interface{} `yaml:"serving"`
		}
		if err := yaml.Unmarshal(data, &keys); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		// yaml.v2 merges into existing maps; a file listing fixed_values
		// replaces the defaults instead.
		if _, ok := keys.Serving["fixed_values"]; ok {
			cfg.Serving.FixedValues = nil
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
