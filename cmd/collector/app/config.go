package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/abritton2002/emg-collector/internal/export"
	"github.com/abritton2002/emg-collector/internal/pairing"
	"github.com/abritton2002/emg-collector/internal/sensor"
	"github.com/abritton2002/emg-collector/internal/storage"
)

const (
	EnvLogLevel  = "EMG_LOG_LEVEL"
	EnvOutputDir = "EMG_OUTPUT_DIR"
	EnvDataDir   = "EMG_DATA_DIR"

	defaultDataDirectory = "data"
	defaultBaseName      = "trigno-sim"
	defaultPairDelay     = 3 * time.Second
	defaultFlushInterval = time.Second
)

type TimeDuration time.Duration

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d TimeDuration) Duration() time.Duration {
	return time.Duration(d)
}

func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

// Config represents the main application configuration
type Config struct {
	Settings Settings      `yaml:"settings"`
	Base     BaseConfig    `yaml:"base"`
	Pairing  PairingConfig `yaml:"pairing"`
	Export   ExportConfig  `yaml:"export"`
	Storage  StorageConfig `yaml:"storage"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// BaseConfig configures the simulated base station
type BaseConfig struct {
	Name          string          `yaml:"name"`
	PairDelay     TimeDuration    `yaml:"pairDelay"`     // Time until a requested sensor pairs, 0 never pairs
	BlockInterval TimeDuration    `yaml:"blockInterval"` // How often a frame is emitted per channel
	Seed          uint64          `yaml:"seed"`
	Sensors       []sensor.Sensor `yaml:"sensors"` // Sensors paired at start
}

// PairingConfig configures the pairing countdown
type PairingConfig struct {
	Countdown    int          `yaml:"countdown"`
	TickInterval TimeDuration `yaml:"tickInterval"`
	PollInterval TimeDuration `yaml:"pollInterval"`
}

// ExportConfig configures the CSV export header
type ExportConfig struct {
	OutputDirectory  string    `yaml:"outputDirectory"`
	Application      string    `yaml:"application"`
	DefaultRates     []float64 `yaml:"defaultRates"`
	MuscleIDs        []string  `yaml:"muscleIDs"`
	MuscleNames      []string  `yaml:"muscleNames"`
	CollectionLength float64   `yaml:"collectionLength"`
	SensorModes      []string  `yaml:"sensorModes"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string       `yaml:"dataDirectory"`
	MaxBatchSize  int          `yaml:"maxBatchSize"`
	FlushInterval TimeDuration `yaml:"flushInterval"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	ec := export.DefaultConfig()

	return &Config{
		Settings: Settings{LogLevel: "info"},
		Base: BaseConfig{
			Name:          defaultBaseName,
			PairDelay:     TimeDuration(defaultPairDelay),
			BlockInterval: TimeDuration(sensor.DefaultBlockInterval),
			Sensors: []sensor.Sensor{
				{
					PairNumber: 1,
					Name:       "Trigno Avanti",
					Channels: []sensor.Channel{
						{Name: "EMG 1", SampleRate: 1259.2593, Enabled: true, Type: sensor.ChannelEMG},
						{Name: "Skin Check", SampleRate: 74.0741, Enabled: true, Type: sensor.ChannelSkinCheck},
					},
				},
				{
					PairNumber: 2,
					Name:       "Trigno Avanti",
					Channels: []sensor.Channel{
						{Name: "EMG 1", SampleRate: 2148.1481, Enabled: true, Type: sensor.ChannelEMG},
						{Name: "ACC X", SampleRate: 148.1481, Enabled: true, Type: sensor.ChannelAux},
						{Name: "Skin Check", SampleRate: 74.0741, Enabled: true, Type: sensor.ChannelSkinCheck},
					},
				},
			},
		},
		Pairing: PairingConfig{
			Countdown:    pairing.DefaultCountdown,
			TickInterval: TimeDuration(pairing.DefaultTickInterval),
			PollInterval: TimeDuration(pairing.DefaultPollInterval),
		},
		Export: ExportConfig{
			OutputDirectory:  "exports",
			Application:      ec.Application,
			DefaultRates:     ec.DefaultRates[:],
			MuscleIDs:        ec.MuscleIDs[:],
			MuscleNames:      ec.MuscleNames[:],
			CollectionLength: ec.CollectionLength,
			SensorModes:      ec.SensorModes[:],
		},
		Storage: StorageConfig{
			DataDirectory: defaultDataDirectory,
			MaxBatchSize:  storage.DefaultMaxBatchSize,
			FlushInterval: TimeDuration(defaultFlushInterval),
		},
	}
}

// LoadConfig reads the configuration file at path over the defaults. An
// empty path or a missing file yields the defaults. Environment overrides
// are applied last.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading configuration file: %w", err)
		default:
			if err = yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("decoding configuration file: %w", err)
			}
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadEnv loads a .env file into the process environment. A missing file
// is not an error.
func LoadEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Settings.LogLevel = v
	}
	if v := os.Getenv(EnvOutputDir); v != "" {
		c.Export.OutputDirectory = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.Storage.DataDirectory = v
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	var errs []error

	for _, s := range c.Base.Sensors {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("base: %w", err))
		}
	}
	if c.Base.PairDelay < 0 {
		errs = append(errs, fmt.Errorf("base: pair delay must not be negative: %s", c.Base.PairDelay))
	}
	if c.Base.BlockInterval < 0 {
		errs = append(errs, fmt.Errorf("base: block interval must not be negative: %s", c.Base.BlockInterval))
	}
	if c.Pairing.Countdown < 0 {
		errs = append(errs, fmt.Errorf("pairing: countdown must not be negative: %d", c.Pairing.Countdown))
	}
	if n := len(c.Export.DefaultRates); n > 2 {
		errs = append(errs, fmt.Errorf("export: at most 2 default rates expected, got %d", n))
	}
	for _, rate := range c.Export.DefaultRates {
		if rate <= 0 {
			errs = append(errs, fmt.Errorf("export: default rate must be positive: %f", rate))
		}
	}
	if c.Storage.MaxBatchSize < 0 {
		errs = append(errs, fmt.Errorf("storage: max batch size must not be negative: %d", c.Storage.MaxBatchSize))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// EngineConfig converts the export section into an export.Config. Missing
// entries take the export defaults.
func (c *ExportConfig) EngineConfig() export.Config {
	ec := export.Config{
		OutputDirectory:  c.OutputDirectory,
		Application:      c.Application,
		CollectionLength: c.CollectionLength,
	}
	copy(ec.DefaultRates[:], c.DefaultRates)
	copy(ec.MuscleIDs[:], c.MuscleIDs)
	copy(ec.MuscleNames[:], c.MuscleNames)
	copy(ec.SensorModes[:], c.SensorModes)
	return ec
}
