package appconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/stevecastle/lkgquilt/platform"
)

// Preset is a display-specific quilt geometry.
type Preset struct {
	Rows    int     `json:"rows"`
	Columns int     `json:"columns"`
	Aspect  float64 `json:"aspect"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
}

// S3Config holds the settings used by --upload.
type S3Config struct {
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	UsePathStyle    bool   `json:"usePathStyle"`
}

// Config holds the quilt defaults, engine locations and optional integrations.
type Config struct {
	// Quilt defaults used when the matching flag is not given
	Rows           int     `json:"rows"`
	Columns        int     `json:"columns"`
	Aspect         float64 `json:"aspect"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	OutputTemplate string  `json:"outputTemplate"`

	// Optional explicit engine paths; empty means installed dependency or PATH
	FFmpegPath  string `json:"ffmpegPath"`
	FFprobePath string `json:"ffprobePath"`

	// Run history database; empty disables history
	HistoryDBPath string `json:"historyDbPath"`

	Presets map[string]Preset `json:"presets"`

	S3 S3Config `json:"s3"`
}

var (
	cfgMu sync.RWMutex
	cfg   = defaultConfig()
)

// DefaultOutputTemplate is the output file name template used when none is configured.
const DefaultOutputTemplate = "{input_prefix}_qs{columns}x{rows}a{aspect}.png"

// DefaultHistoryDBPath returns the default run history database path.
func DefaultHistoryDBPath() string {
	return filepath.Join(platform.GetDataDir(), "history.db")
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	return platform.GetDataDir()
}

func defaultPresets() map[string]Preset {
	return map[string]Preset{
		"portrait":     {Rows: 6, Columns: 8, Aspect: 0.75, Width: 3360, Height: 3360},
		"go":           {Rows: 6, Columns: 11, Aspect: 0.5625, Width: 4092, Height: 4092},
		"16-landscape": {Rows: 7, Columns: 7, Aspect: 1.77778, Width: 5999, Height: 5999},
		"32-landscape": {Rows: 7, Columns: 7, Aspect: 1.77778, Width: 8190, Height: 8190},
		"65":           {Rows: 9, Columns: 8, Aspect: 1.77778, Width: 8192, Height: 8192},
	}
}

// defaultConfig returns a Config populated with sensible defaults.
func defaultConfig() Config {
	return Config{
		Rows:           6,
		Columns:        8,
		Aspect:         0.75,
		Width:          3360,
		Height:         3360,
		OutputTemplate: DefaultOutputTemplate,
		HistoryDBPath:  DefaultHistoryDBPath(),
		Presets:        defaultPresets(),
	}
}

// Get returns a copy of the current in-memory config.
func Get() Config {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg
}

// Set replaces the in-memory config.
func Set(c Config) {
	cfgMu.Lock()
	cfg = c
	cfgMu.Unlock()
}

// LookupPreset finds a preset by name, ignoring case.
func (c Config) LookupPreset(name string) (Preset, bool) {
	if p, ok := c.Presets[name]; ok {
		return p, true
	}
	for k, p := range c.Presets {
		if strings.EqualFold(k, name) {
			return p, true
		}
	}
	return Preset{}, false
}

// PresetNames returns the configured preset names in sorted order.
func (c Config) PresetNames() []string {
	names := make([]string, 0, len(c.Presets))
	for k := range c.Presets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func isJSONObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func deepMergeJSON(dst, src map[string]json.RawMessage) {
	for k, v := range src {
		if existing, ok := dst[k]; ok && isJSONObject(existing) && isJSONObject(v) {
			var dstObj map[string]json.RawMessage
			var srcObj map[string]json.RawMessage
			if err := json.Unmarshal(existing, &dstObj); err != nil {
				dst[k] = v
				continue
			}
			if err := json.Unmarshal(v, &srcObj); err != nil {
				dst[k] = v
				continue
			}
			deepMergeJSON(dstObj, srcObj)
			merged, err := json.Marshal(dstObj)
			if err != nil {
				dst[k] = v
				continue
			}
			dst[k] = merged
			continue
		}
		dst[k] = v
	}
}

// ConfigPath returns the full path to the config.json file.
func ConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads the config from the default location. See LoadFrom.
func Load() (Config, string, error) {
	path := ConfigPath()
	c, err := LoadFrom(path)
	return c, path, err
}

// LoadFrom reads the config at path and updates the in-memory config.
// If the file doesn't exist, it is created with default values.
func LoadFrom(path string) (Config, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Config{}, fmt.Errorf("failed to create config directory %s: %w", filepath.Dir(path), err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			def := defaultConfig()
			if saveErr := SaveTo(path, def); saveErr != nil {
				return Config{}, fmt.Errorf("failed to create default config file: %w", saveErr)
			}
			return def, nil
		}
		return Config{}, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	applyDefaults(&c)
	Set(c)
	return c, nil
}

// applyDefaults fills zero-valued fields from defaultConfig.
func applyDefaults(c *Config) {
	def := defaultConfig()
	if c.Rows <= 0 {
		c.Rows = def.Rows
	}
	if c.Columns <= 0 {
		c.Columns = def.Columns
	}
	if c.Aspect <= 0 {
		c.Aspect = def.Aspect
	}
	if c.Width <= 0 {
		c.Width = def.Width
	}
	if c.Height <= 0 {
		c.Height = def.Height
	}
	if c.OutputTemplate == "" {
		c.OutputTemplate = def.OutputTemplate
	}
	if c.Presets == nil {
		c.Presets = def.Presets
	}
}

// SaveTo writes the config to path, merging it over any keys already present
// in the file so unknown settings survive a round trip.
func SaveTo(path string, c Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	base := map[string]json.RawMessage{}
	if existing, readErr := os.ReadFile(path); readErr == nil {
		var tmp map[string]json.RawMessage
		if err := json.Unmarshal(existing, &tmp); err == nil {
			base = tmp
		}
	}

	marshaled, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	incoming := map[string]json.RawMessage{}
	if err := json.Unmarshal(marshaled, &incoming); err != nil {
		return fmt.Errorf("failed to map config JSON: %w", err)
	}

	deepMergeJSON(base, incoming)

	mergedData, err := json.MarshalIndent(base, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal merged config: %w", err)
	}
	if err := os.WriteFile(path, mergedData, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	Set(c)
	return nil
}
