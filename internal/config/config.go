package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// DefaultConfigPath is the path to the canonical defaults file.
// This is the single source of truth for all default rule thresholds.
const DefaultConfigPath = "config/vproducts.defaults.json"

// Config represents the root configuration for the virtual product pipeline.
// Every field is optional; the Get* accessors return the built-in default when
// a field is omitted, so partial files are safe.
type Config struct {
	// Sentinel-1 water rule (s1_water)
	WaterVHDB   *float64 `json:"water_vh_db,omitempty"`
	WaterMonths *float64 `json:"water_months,omitempty"`
	// Sentinel-1 artificial/woody rule (s1_artiwoody)
	ArtificialVHDB   *float64 `json:"artificial_vh_db,omitempty"`
	ArtificialMonths *float64 `json:"artificial_months,omitempty"`

	// Sentinel-2 NDVI/NDBI rules
	VegetationNDVI *float64 `json:"vegetation_ndvi,omitempty"`
	ClearCutNDVI   *float64 `json:"clear_cut_ndvi,omitempty"`
	ArtificialNDBI *float64 `json:"artificial_ndbi,omitempty"`

	// Theme utilities
	FloodVVDB    *float64 `json:"flood_vv_db,omitempty"`
	FloodVHDB    *float64 `json:"flood_vh_db,omitempty"`
	ForestVHDB   *float64 `json:"forest_vh_db,omitempty"`
	ForestMonths *int     `json:"forest_months,omitempty"`
	BurnNBRMin   *float64 `json:"burn_nbr_min,omitempty"`
	BurnNBRMax   *float64 `json:"burn_nbr_max,omitempty"`

	// Execution
	Workers        *int     `json:"workers,omitempty"`
	ChunkRows      *int     `json:"chunk_rows,omitempty"`
	CompositeYears *int     `json:"composite_years,omitempty"`
	PixelSizeM     *float64 `json:"pixel_size_m,omitempty"`

	// Storage and models
	DBPath   *string `json:"db_path,omitempty"`
	ModelDir *string `json:"model_dir,omitempty"`

	// Webhook
	WebhookHost    *string `json:"webhook_host,omitempty"`
	WebhookAction  *string `json:"webhook_action,omitempty"`
	WebhookTimeout *string `json:"webhook_timeout,omitempty"` // duration string like "30s"

	// HTTP server
	Listen *string `json:"listen,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// Empty returns a Config with all fields set to nil.
// Use LoadConfig to load actual values from the defaults file.
func Empty() *Config {
	return &Config{}
}

// Defaults returns a Config with every field populated from the built-in
// defaults. It matches config/vproducts.defaults.json.
func Defaults() *Config {
	c := Empty()
	return &Config{
		WaterVHDB:        ptrFloat64(c.GetWaterVHDB()),
		WaterMonths:      ptrFloat64(c.GetWaterMonths()),
		ArtificialVHDB:   ptrFloat64(c.GetArtificialVHDB()),
		ArtificialMonths: ptrFloat64(c.GetArtificialMonths()),
		VegetationNDVI:   ptrFloat64(c.GetVegetationNDVI()),
		ClearCutNDVI:     ptrFloat64(c.GetClearCutNDVI()),
		ArtificialNDBI:   ptrFloat64(c.GetArtificialNDBI()),
		FloodVVDB:        ptrFloat64(c.GetFloodVVDB()),
		FloodVHDB:        ptrFloat64(c.GetFloodVHDB()),
		ForestVHDB:       ptrFloat64(c.GetForestVHDB()),
		ForestMonths:     ptrInt(c.GetForestMonths()),
		BurnNBRMin:       ptrFloat64(c.GetBurnNBRMin()),
		BurnNBRMax:       ptrFloat64(c.GetBurnNBRMax()),
		ChunkRows:        ptrInt(c.GetChunkRows()),
		CompositeYears:   ptrInt(c.GetCompositeYears()),
		PixelSizeM:       ptrFloat64(c.GetPixelSizeM()),
		DBPath:           ptrString(c.GetDBPath()),
		ModelDir:         ptrString(c.GetModelDir()),
		WebhookHost:      ptrString(c.GetWebhookHost()),
		WebhookAction:    ptrString(c.GetWebhookAction()),
		WebhookTimeout:   ptrString(c.GetWebhookTimeout().String()),
		Listen:           ptrString(c.GetListen()),
	}
}

// LoadConfig loads a Config from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/<pkg>/
		"../../../" + DefaultConfigPath, // from cmd/<tool>/ or nested packages
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	for name, v := range map[string]*float64{
		"water_months":      c.WaterMonths,
		"artificial_months": c.ArtificialMonths,
	} {
		if v != nil && (*v < 0 || *v > 12) {
			return fmt.Errorf("%s must be between 0 and 12, got %f", name, *v)
		}
	}

	if c.ForestMonths != nil && (*c.ForestMonths < 0 || *c.ForestMonths > 12) {
		return fmt.Errorf("forest_months must be between 0 and 12, got %d", *c.ForestMonths)
	}

	if c.GetBurnNBRMin() >= c.GetBurnNBRMax() {
		return fmt.Errorf("burn_nbr_min (%f) must be below burn_nbr_max (%f)", c.GetBurnNBRMin(), c.GetBurnNBRMax())
	}

	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.ChunkRows != nil && *c.ChunkRows <= 0 {
		return fmt.Errorf("chunk_rows must be positive, got %d", *c.ChunkRows)
	}
	if c.CompositeYears != nil && *c.CompositeYears < 1 {
		return fmt.Errorf("composite_years must be at least 1, got %d", *c.CompositeYears)
	}
	if c.PixelSizeM != nil && *c.PixelSizeM <= 0 {
		return fmt.Errorf("pixel_size_m must be positive, got %f", *c.PixelSizeM)
	}

	if c.WebhookTimeout != nil && *c.WebhookTimeout != "" {
		if _, err := time.ParseDuration(*c.WebhookTimeout); err != nil {
			return fmt.Errorf("invalid webhook_timeout '%s': %w", *c.WebhookTimeout, err)
		}
	}

	return nil
}

// GetWaterVHDB returns the VH backscatter (dB) below which a pixel is wet.
func (c *Config) GetWaterVHDB() float64 {
	if c.WaterVHDB == nil {
		return -22
	}
	return *c.WaterVHDB
}

// GetWaterMonths returns the number of wet months (out of 12) needed for water.
func (c *Config) GetWaterMonths() float64 {
	if c.WaterMonths == nil {
		return 8
	}
	return *c.WaterMonths
}

// GetArtificialVHDB returns the VH backscatter (dB) above which a pixel is bright.
func (c *Config) GetArtificialVHDB() float64 {
	if c.ArtificialVHDB == nil {
		return -15
	}
	return *c.ArtificialVHDB
}

// GetArtificialMonths returns the number of bright months (out of 12) needed.
func (c *Config) GetArtificialMonths() float64 {
	if c.ArtificialMonths == nil {
		return 8
	}
	return *c.ArtificialMonths
}

// GetVegetationNDVI returns the growing-season max NDVI threshold for vegetation.
func (c *Config) GetVegetationNDVI() float64 {
	if c.VegetationNDVI == nil {
		return 0.4
	}
	return *c.VegetationNDVI
}

// GetClearCutNDVI returns the growing-season mean NDVI at or below which a
// pixel is treated as clear-cut.
func (c *Config) GetClearCutNDVI() float64 {
	if c.ClearCutNDVI == nil {
		return 0.5
	}
	return *c.ClearCutNDVI
}

// GetArtificialNDBI returns the mean NDBI above which a pixel is built-up.
func (c *Config) GetArtificialNDBI() float64 {
	if c.ArtificialNDBI == nil {
		return -0.1
	}
	return *c.ArtificialNDBI
}

func (c *Config) GetFloodVVDB() float64 {
	if c.FloodVVDB == nil {
		return -14
	}
	return *c.FloodVVDB
}

func (c *Config) GetFloodVHDB() float64 {
	if c.FloodVHDB == nil {
		return -24
	}
	return *c.FloodVHDB
}

func (c *Config) GetForestVHDB() float64 {
	if c.ForestVHDB == nil {
		return -15
	}
	return *c.ForestVHDB
}

func (c *Config) GetForestMonths() int {
	if c.ForestMonths == nil {
		return 8
	}
	return *c.ForestMonths
}

func (c *Config) GetBurnNBRMin() float64 {
	if c.BurnNBRMin == nil {
		return -0.99
	}
	return *c.BurnNBRMin
}

func (c *Config) GetBurnNBRMax() float64 {
	if c.BurnNBRMax == nil {
		return -0.01
	}
	return *c.BurnNBRMax
}

// GetWorkers returns the worker count for chunked execution.
// Zero or unset means one worker per available CPU.
func (c *Config) GetWorkers() int {
	if c.Workers == nil || *c.Workers == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return *c.Workers
}

// GetChunkRows returns the number of raster rows processed per task.
func (c *Config) GetChunkRows() int {
	if c.ChunkRows == nil {
		return 256
	}
	return *c.ChunkRows
}

// GetCompositeYears returns how many seasons (the target year and the ones
// before it) feed a classifier composite.
func (c *Config) GetCompositeYears() int {
	if c.CompositeYears == nil {
		return 3
	}
	return *c.CompositeYears
}

// GetPixelSizeM returns the ground pixel edge length in metres.
func (c *Config) GetPixelSizeM() float64 {
	if c.PixelSizeM == nil {
		return 10
	}
	return *c.PixelSizeM
}

func (c *Config) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "vproducts.db"
	}
	return *c.DBPath
}

func (c *Config) GetModelDir() string {
	if c.ModelDir == nil || *c.ModelDir == "" {
		return "models"
	}
	return *c.ModelDir
}

func (c *Config) GetWebhookHost() string {
	if c.WebhookHost == nil || *c.WebhookHost == "" {
		return "http://service.livingwales.space"
	}
	return *c.WebhookHost
}

func (c *Config) GetWebhookAction() string {
	if c.WebhookAction == nil || *c.WebhookAction == "" {
		return "refresh-repo"
	}
	return *c.WebhookAction
}

// GetWebhookTimeout parses and returns the WebhookTimeout as a time.Duration.
func (c *Config) GetWebhookTimeout() time.Duration {
	if c.WebhookTimeout == nil || *c.WebhookTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(*c.WebhookTimeout)
	if err != nil {
		return 30 * time.Second // default on parse error
	}
	return d
}

func (c *Config) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8080"
	}
	return *c.Listen
}
