package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for the scene optimization
// components. All fields are pointers so a partial JSON file overrides only
// what it names; the Get* accessors fall back to defaults for nil fields.
type TuningConfig struct {
	// Tracking params
	SmoothingEnabled   *bool    `json:"smoothing_enabled,omitempty"`
	SmoothingFactor    *float64 `json:"smoothing_factor,omitempty"`
	PredictionEnabled  *bool    `json:"prediction_enabled,omitempty"`
	PredictionSteps    *int     `json:"prediction_steps,omitempty"`
	OcclusionHandling  *bool    `json:"occlusion_handling,omitempty"`
	OcclusionTimeoutMS *float64 `json:"occlusion_timeout_ms,omitempty"`
	JitterReduction    *bool    `json:"jitter_reduction,omitempty"`
	JitterThreshold    *float64 `json:"jitter_threshold,omitempty"`
	KalmanEnabled      *bool    `json:"kalman_enabled,omitempty"`

	// Kalman params
	ProcessNoisePos  *float64 `json:"process_noise_pos,omitempty"`
	ProcessNoiseVel  *float64 `json:"process_noise_vel,omitempty"`
	MeasurementNoise *float64 `json:"measurement_noise,omitempty"`

	// Pool params
	PoolInitialSize         *int     `json:"pool_initial_size,omitempty"`
	PoolMaxSize             *int     `json:"pool_max_size,omitempty"`
	PoolGrowthFactor        *float64 `json:"pool_growth_factor,omitempty"`
	PoolShrinkFactor        *float64 `json:"pool_shrink_factor,omitempty"`
	PoolShrinkThreshold     *float64 `json:"pool_shrink_threshold,omitempty"`
	PoolShrinkCheckInterval *string  `json:"pool_shrink_check_interval,omitempty"` // duration string like "60s"

	// Render params
	MaxBatchVertices *int `json:"max_batch_vertices,omitempty"`
	MinShadowMapSize *int `json:"min_shadow_map_size,omitempty"`
	MaxShadowMapSize *int `json:"max_shadow_map_size,omitempty"`

	// LOD params
	LODTargetFPS        *float64 `json:"lod_target_fps,omitempty"`
	LODCullingDistance  *float64 `json:"lod_culling_distance,omitempty"`
	TextureMaxDimension *int     `json:"texture_max_dimension,omitempty"`
	TextureQuality      *float64 `json:"texture_quality,omitempty"`
	QuantizationBits    *int     `json:"quantization_bits,omitempty"`

	// Profiler params
	ProfileInterval      *string  `json:"profile_interval,omitempty"` // duration string like "1s"
	LeakGrowthPercent    *float64 `json:"leak_growth_percent,omitempty"`
	MemWarningThreshold  *float64 `json:"mem_warning_threshold,omitempty"`
	MemCriticalThreshold *float64 `json:"mem_critical_threshold,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated with
// its default value. Mostly useful for serializing a complete template.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		SmoothingEnabled:   ptrBool(true),
		SmoothingFactor:    ptrFloat64(0.8),
		PredictionEnabled:  ptrBool(true),
		PredictionSteps:    ptrInt(5),
		OcclusionHandling:  ptrBool(true),
		OcclusionTimeoutMS: ptrFloat64(500),
		JitterReduction:    ptrBool(true),
		JitterThreshold:    ptrFloat64(0.001),
		KalmanEnabled:      ptrBool(false),

		ProcessNoisePos:  ptrFloat64(0.01),
		ProcessNoiseVel:  ptrFloat64(0.1),
		MeasurementNoise: ptrFloat64(0.1),

		PoolInitialSize:         ptrInt(50),
		PoolMaxSize:             ptrInt(1000),
		PoolGrowthFactor:        ptrFloat64(2.0),
		PoolShrinkFactor:        ptrFloat64(0.5),
		PoolShrinkThreshold:     ptrFloat64(0.25),
		PoolShrinkCheckInterval: ptrString("60s"),

		MaxBatchVertices: ptrInt(65536),
		MinShadowMapSize: ptrInt(256),
		MaxShadowMapSize: ptrInt(2048),

		LODTargetFPS:        ptrFloat64(60),
		LODCullingDistance:  ptrFloat64(100),
		TextureMaxDimension: ptrInt(1024),
		TextureQuality:      ptrFloat64(0.8),
		QuantizationBits:    ptrInt(12),

		ProfileInterval:      ptrString("1s"),
		LeakGrowthPercent:    ptrFloat64(10),
		MemWarningThreshold:  ptrFloat64(0.8),
		MemCriticalThreshold: ptrFloat64(0.95),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Reject oversized files before reading them.
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

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/scene/<pkg>/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.SmoothingFactor != nil {
		if *c.SmoothingFactor < 0 || *c.SmoothingFactor >= 1 {
			return fmt.Errorf("smoothing_factor must be in [0,1), got %f", *c.SmoothingFactor)
		}
	}

	if c.PredictionSteps != nil && *c.PredictionSteps < 1 {
		return fmt.Errorf("prediction_steps must be positive, got %d", *c.PredictionSteps)
	}

	if c.OcclusionTimeoutMS != nil && *c.OcclusionTimeoutMS < 0 {
		return fmt.Errorf("occlusion_timeout_ms must be non-negative, got %f", *c.OcclusionTimeoutMS)
	}

	if c.JitterThreshold != nil && *c.JitterThreshold < 0 {
		return fmt.Errorf("jitter_threshold must be non-negative, got %f", *c.JitterThreshold)
	}

	if c.PoolInitialSize != nil && *c.PoolInitialSize < 1 {
		return fmt.Errorf("pool_initial_size must be positive, got %d", *c.PoolInitialSize)
	}

	if c.PoolMaxSize != nil && c.PoolInitialSize != nil && *c.PoolMaxSize < *c.PoolInitialSize {
		return fmt.Errorf("pool_max_size %d below pool_initial_size %d", *c.PoolMaxSize, *c.PoolInitialSize)
	}

	if c.PoolGrowthFactor != nil && *c.PoolGrowthFactor <= 1 {
		return fmt.Errorf("pool_growth_factor must exceed 1, got %f", *c.PoolGrowthFactor)
	}

	if c.PoolShrinkFactor != nil {
		if *c.PoolShrinkFactor <= 0 || *c.PoolShrinkFactor > 1 {
			return fmt.Errorf("pool_shrink_factor must be in (0,1], got %f", *c.PoolShrinkFactor)
		}
	}

	if c.PoolShrinkThreshold != nil {
		if *c.PoolShrinkThreshold < 0 || *c.PoolShrinkThreshold > 1 {
			return fmt.Errorf("pool_shrink_threshold must be in [0,1], got %f", *c.PoolShrinkThreshold)
		}
	}

	if c.PoolShrinkCheckInterval != nil && *c.PoolShrinkCheckInterval != "" {
		if _, err := time.ParseDuration(*c.PoolShrinkCheckInterval); err != nil {
			return fmt.Errorf("invalid pool_shrink_check_interval '%s': %w", *c.PoolShrinkCheckInterval, err)
		}
	}

	if c.MaxBatchVertices != nil && *c.MaxBatchVertices < 3 {
		return fmt.Errorf("max_batch_vertices must cover at least one triangle, got %d", *c.MaxBatchVertices)
	}

	if c.MinShadowMapSize != nil && c.MaxShadowMapSize != nil && *c.MaxShadowMapSize < *c.MinShadowMapSize {
		return fmt.Errorf("max_shadow_map_size %d below min_shadow_map_size %d", *c.MaxShadowMapSize, *c.MinShadowMapSize)
	}

	if c.LODTargetFPS != nil && *c.LODTargetFPS <= 0 {
		return fmt.Errorf("lod_target_fps must be positive, got %f", *c.LODTargetFPS)
	}

	if c.TextureQuality != nil {
		if *c.TextureQuality <= 0 || *c.TextureQuality > 1 {
			return fmt.Errorf("texture_quality must be in (0,1], got %f", *c.TextureQuality)
		}
	}

	if c.QuantizationBits != nil {
		if *c.QuantizationBits < 1 || *c.QuantizationBits > 16 {
			return fmt.Errorf("quantization_bits must be in [1,16], got %d", *c.QuantizationBits)
		}
	}

	if c.ProfileInterval != nil && *c.ProfileInterval != "" {
		if _, err := time.ParseDuration(*c.ProfileInterval); err != nil {
			return fmt.Errorf("invalid profile_interval '%s': %w", *c.ProfileInterval, err)
		}
	}

	if c.MemWarningThreshold != nil && c.MemCriticalThreshold != nil &&
		*c.MemCriticalThreshold <= *c.MemWarningThreshold {
		return fmt.Errorf("mem_critical_threshold %f must exceed mem_warning_threshold %f",
			*c.MemCriticalThreshold, *c.MemWarningThreshold)
	}

	return nil
}

// GetSmoothingEnabled returns the smoothing_enabled value or the default.
func (c *TuningConfig) GetSmoothingEnabled() bool {
	if c.SmoothingEnabled == nil {
		return true
	}
	return *c.SmoothingEnabled
}

// GetSmoothingFactor returns the smoothing_factor value or the default.
func (c *TuningConfig) GetSmoothingFactor() float64 {
	if c.SmoothingFactor == nil {
		return 0.8
	}
	return *c.SmoothingFactor
}

// GetPredictionEnabled returns the prediction_enabled value or the default.
func (c *TuningConfig) GetPredictionEnabled() bool {
	if c.PredictionEnabled == nil {
		return true
	}
	return *c.PredictionEnabled
}

// GetPredictionSteps returns the prediction_steps value or the default.
func (c *TuningConfig) GetPredictionSteps() int {
	if c.PredictionSteps == nil {
		return 5
	}
	return *c.PredictionSteps
}

// GetOcclusionHandling returns the occlusion_handling value or the default.
func (c *TuningConfig) GetOcclusionHandling() bool {
	if c.OcclusionHandling == nil {
		return true
	}
	return *c.OcclusionHandling
}

// GetOcclusionTimeoutMS returns the occlusion_timeout_ms value or the default.
func (c *TuningConfig) GetOcclusionTimeoutMS() float64 {
	if c.OcclusionTimeoutMS == nil {
		return 500
	}
	return *c.OcclusionTimeoutMS
}

// GetJitterReduction returns the jitter_reduction value or the default.
func (c *TuningConfig) GetJitterReduction() bool {
	if c.JitterReduction == nil {
		return true
	}
	return *c.JitterReduction
}

// GetJitterThreshold returns the jitter_threshold value or the default.
func (c *TuningConfig) GetJitterThreshold() float64 {
	if c.JitterThreshold == nil {
		return 0.001
	}
	return *c.JitterThreshold
}

// GetKalmanEnabled returns the kalman_enabled value or the default.
func (c *TuningConfig) GetKalmanEnabled() bool {
	if c.KalmanEnabled == nil {
		return false
	}
	return *c.KalmanEnabled
}

// GetProcessNoisePos returns the process_noise_pos value or the default.
func (c *TuningConfig) GetProcessNoisePos() float64 {
	if c.ProcessNoisePos == nil {
		return 0.01
	}
	return *c.ProcessNoisePos
}

// GetProcessNoiseVel returns the process_noise_vel value or the default.
func (c *TuningConfig) GetProcessNoiseVel() float64 {
	if c.ProcessNoiseVel == nil {
		return 0.1
	}
	return *c.ProcessNoiseVel
}

// GetMeasurementNoise returns the measurement_noise value or the default.
func (c *TuningConfig) GetMeasurementNoise() float64 {
	if c.MeasurementNoise == nil {
		return 0.1
	}
	return *c.MeasurementNoise
}

// GetPoolInitialSize returns the pool_initial_size value or the default.
func (c *TuningConfig) GetPoolInitialSize() int {
	if c.PoolInitialSize == nil {
		return 50
	}
	return *c.PoolInitialSize
}

// GetPoolMaxSize returns the pool_max_size value or the default.
func (c *TuningConfig) GetPoolMaxSize() int {
	if c.PoolMaxSize == nil {
		return 1000
	}
	return *c.PoolMaxSize
}

// GetPoolGrowthFactor returns the pool_growth_factor value or the default.
func (c *TuningConfig) GetPoolGrowthFactor() float64 {
	if c.PoolGrowthFactor == nil {
		return 2.0
	}
	return *c.PoolGrowthFactor
}

// GetPoolShrinkFactor returns the pool_shrink_factor value or the default.
func (c *TuningConfig) GetPoolShrinkFactor() float64 {
	if c.PoolShrinkFactor == nil {
		return 0.5
	}
	return *c.PoolShrinkFactor
}

// GetPoolShrinkThreshold returns the pool_shrink_threshold value or the default.
func (c *TuningConfig) GetPoolShrinkThreshold() float64 {
	if c.PoolShrinkThreshold == nil {
		return 0.25
	}
	return *c.PoolShrinkThreshold
}

// GetPoolShrinkCheckInterval parses and returns the shrink check interval.
func (c *TuningConfig) GetPoolShrinkCheckInterval() time.Duration {
	if c.PoolShrinkCheckInterval == nil || *c.PoolShrinkCheckInterval == "" {
		return 60 * time.Second // default
	}
	d, err := time.ParseDuration(*c.PoolShrinkCheckInterval)
	if err != nil {
		return 60 * time.Second // default on parse error
	}
	return d
}

// GetMaxBatchVertices returns the max_batch_vertices value or the default.
func (c *TuningConfig) GetMaxBatchVertices() int {
	if c.MaxBatchVertices == nil {
		return 65536
	}
	return *c.MaxBatchVertices
}

// GetMinShadowMapSize returns the min_shadow_map_size value or the default.
func (c *TuningConfig) GetMinShadowMapSize() int {
	if c.MinShadowMapSize == nil {
		return 256
	}
	return *c.MinShadowMapSize
}

// GetMaxShadowMapSize returns the max_shadow_map_size value or the default.
func (c *TuningConfig) GetMaxShadowMapSize() int {
	if c.MaxShadowMapSize == nil {
		return 2048
	}
	return *c.MaxShadowMapSize
}

// GetLODTargetFPS returns the lod_target_fps value or the default.
func (c *TuningConfig) GetLODTargetFPS() float64 {
	if c.LODTargetFPS == nil {
		return 60
	}
	return *c.LODTargetFPS
}

// GetLODCullingDistance returns the lod_culling_distance value or the default.
func (c *TuningConfig) GetLODCullingDistance() float64 {
	if c.LODCullingDistance == nil {
		return 100
	}
	return *c.LODCullingDistance
}

// GetTextureMaxDimension returns the texture_max_dimension value or the default.
func (c *TuningConfig) GetTextureMaxDimension() int {
	if c.TextureMaxDimension == nil {
		return 1024
	}
	return *c.TextureMaxDimension
}

// GetTextureQuality returns the texture_quality value or the default.
func (c *TuningConfig) GetTextureQuality() float64 {
	if c.TextureQuality == nil {
		return 0.8
	}
	return *c.TextureQuality
}

// GetQuantizationBits returns the quantization_bits value or the default.
func (c *TuningConfig) GetQuantizationBits() int {
	if c.QuantizationBits == nil {
		return 12
	}
	return *c.QuantizationBits
}

// GetProfileInterval parses and returns the profiler sampling interval.
func (c *TuningConfig) GetProfileInterval() time.Duration {
	if c.ProfileInterval == nil || *c.ProfileInterval == "" {
		return time.Second // default
	}
	d, err := time.ParseDuration(*c.ProfileInterval)
	if err != nil {
		return time.Second // default on parse error
	}
	return d
}

// GetLeakGrowthPercent returns the leak_growth_percent value or the default.
func (c *TuningConfig) GetLeakGrowthPercent() float64 {
	if c.LeakGrowthPercent == nil {
		return 10
	}
	return *c.LeakGrowthPercent
}

// GetMemWarningThreshold returns the mem_warning_threshold value or the default.
func (c *TuningConfig) GetMemWarningThreshold() float64 {
	if c.MemWarningThreshold == nil {
		return 0.8
	}
	return *c.MemWarningThreshold
}

// GetMemCriticalThreshold returns the mem_critical_threshold value or the default.
func (c *TuningConfig) GetMemCriticalThreshold() float64 {
	if c.MemCriticalThreshold == nil {
		return 0.95
	}
	return *c.MemCriticalThreshold
}
