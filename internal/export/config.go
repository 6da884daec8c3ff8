package export

const (
	// DefaultApplication is the banner of the legacy acquisition software
	DefaultApplication = "Trigno Discover (1.7.0)"

	// DefaultCollectionLength is written when the length cannot be inferred
	DefaultCollectionLength = 1180.3455

	DefaultFilePrefix   = "delsys_data_"
	DefaultYTFilePrefix = "delsys_yt_data_"
)

// Config holds the fixed values of the export header. The defaults match
// the reference dataset the layout was taken from.
type Config struct {
	OutputDirectory  string
	Application      string
	DefaultRates     [2]float64 // Used when a channel header carries no readable rate
	MuscleIDs        [2]string  // Used when a muscle slot has no ID
	MuscleNames      [2]string  // Used when a muscle slot has no label
	CollectionLength float64    // Used when a needed series is empty
	SensorModes      [2]string
	FilePrefix       string
	YTFilePrefix     string
}

// DefaultConfig returns the configuration reproducing the legacy files
func DefaultConfig() Config {
	return Config{
		OutputDirectory:  ".",
		Application:      DefaultApplication,
		DefaultRates:     [2]float64{1259.2593, 2148.1481},
		MuscleIDs:        [2]string{"81728", "81745"},
		MuscleNames:      [2]string{"Muscle 1", "Muscle 2"},
		CollectionLength: DefaultCollectionLength,
		SensorModes:      [2]string{"sensor mode: 50", "sensor mode: 40"},
		FilePrefix:       DefaultFilePrefix,
		YTFilePrefix:     DefaultYTFilePrefix,
	}
}

// withDefaults fills zero fields from DefaultConfig
func (c Config) withDefaults() Config {
	d := DefaultConfig()

	if c.OutputDirectory == "" {
		c.OutputDirectory = d.OutputDirectory
	}
	if c.Application == "" {
		c.Application = d.Application
	}
	for i := range c.DefaultRates {
		if c.DefaultRates[i] <= 0 {
			c.DefaultRates[i] = d.DefaultRates[i]
		}
		if c.MuscleIDs[i] == "" {
			c.MuscleIDs[i] = d.MuscleIDs[i]
		}
		if c.MuscleNames[i] == "" {
			c.MuscleNames[i] = d.MuscleNames[i]
		}
		if c.SensorModes[i] == "" {
			c.SensorModes[i] = d.SensorModes[i]
		}
	}
	if c.CollectionLength <= 0 {
		c.CollectionLength = d.CollectionLength
	}
	if c.FilePrefix == "" {
		c.FilePrefix = d.FilePrefix
	}
	if c.YTFilePrefix == "" {
		c.YTFilePrefix = d.YTFilePrefix
	}

	return c
}
