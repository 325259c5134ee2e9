package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical analysis defaults file.
// This is the single source of truth for all default threshold values.
const DefaultConfigPath = "config/analysis.defaults.json"

// AnalysisConfig represents the root configuration for the analytics
// pipeline. Fields are pointers so that partial JSON files only override
// the values they name; the Get* accessors supply fallback defaults.
//
// None of the defaults here are authoritative: occlusion windows, control
// radii and kick thresholds have no labelled ground truth behind them and
// must be tuned empirically per competition and camera setup.
type AnalysisConfig struct {
	// Pitch params
	PitchLengthMeters *float64 `json:"pitch_length_m,omitempty"`
	PitchWidthMeters  *float64 `json:"pitch_width_m,omitempty"`
	GoalWidthMeters   *float64 `json:"goal_width_m,omitempty"`
	HeatmapGridSize   *int     `json:"heatmap_grid_size,omitempty"`

	// Stream params
	FrameRate *float64 `json:"frame_rate,omitempty"`

	// Tracker params
	GatingDistanceSquared  *float64 `json:"gating_distance_squared,omitempty"`
	MaxCoastFrames         *int     `json:"max_coast_frames,omitempty"`
	ProcessNoisePos        *float64 `json:"process_noise_pos,omitempty"`
	ProcessNoiseVel        *float64 `json:"process_noise_vel,omitempty"`
	MeasurementNoise       *float64 `json:"measurement_noise,omitempty"`
	CoastCovInflation      *float64 `json:"coast_cov_inflation,omitempty"`
	MaxCovarianceDiag      *float64 `json:"max_covariance_diag,omitempty"`
	MaxPositionJumpMeters  *float64 `json:"max_position_jump_m,omitempty"`
	MaxPlayerSpeedMps      *float64 `json:"max_player_speed_mps,omitempty"`
	MaxBallSpeedMps        *float64 `json:"max_ball_speed_mps,omitempty"`
	MinDetectionConfidence *float64 `json:"min_detection_confidence,omitempty"`
	BallMinConfidence      *float64 `json:"ball_min_confidence,omitempty"`
	MaxTracks              *int     `json:"max_tracks,omitempty"`
	MaxPredictDt           *float64 `json:"max_predict_dt,omitempty"`

	// Kinematics params
	SmoothingWindow       *int     `json:"smoothing_window,omitempty"`
	SprintSpeedMps        *float64 `json:"sprint_speed_mps,omitempty"`
	SprintMinDuration     *string  `json:"sprint_min_duration,omitempty"` // duration string like "1s"
	HighIntensitySpeedMps *float64 `json:"high_intensity_speed_mps,omitempty"`

	// Event detector params
	ControlRadiusMeters  *float64 `json:"control_radius_m,omitempty"`
	ControlSpeedMaxMps   *float64 `json:"control_speed_max_mps,omitempty"`
	KickSpeedMps         *float64 `json:"kick_speed_mps,omitempty"`
	TransitTimeout       *string  `json:"transit_timeout,omitempty"` // duration string like "3s"
	GoalAimHalfWidthM    *float64 `json:"goal_aim_half_width_m,omitempty"`
	ShortPassMaxMeters   *float64 `json:"short_pass_max_m,omitempty"`
	MediumPassMaxMeters  *float64 `json:"medium_pass_max_m,omitempty"`

	// Tactical params
	TacticalWindow *string `json:"tactical_window,omitempty"` // duration string like "60s"
	TacticalStride *string `json:"tactical_stride,omitempty"` // duration string like "30s"

	// Pipeline params
	QueueCapacity *int `json:"queue_capacity,omitempty"`
}

// EmptyAnalysisConfig returns an AnalysisConfig with all fields set to nil.
// Use LoadAnalysisConfig to load actual values from the defaults file.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON retain their defaults, so
// partial configs are safe.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
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

	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical analysis defaults from
// DefaultConfigPath, searching upward from the current directory. Panics if
// the file cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *AnalysisConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/<pkg>/
		"../../../" + DefaultConfigPath, // deeper packages
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadAnalysisConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are coherent.
func (c *AnalysisConfig) Validate() error {
	if c.PitchLengthMeters != nil && *c.PitchLengthMeters <= 0 {
		return fmt.Errorf("pitch_length_m must be positive, got %f", *c.PitchLengthMeters)
	}
	if c.PitchWidthMeters != nil && *c.PitchWidthMeters <= 0 {
		return fmt.Errorf("pitch_width_m must be positive, got %f", *c.PitchWidthMeters)
	}
	if c.GoalWidthMeters != nil && *c.GoalWidthMeters <= 0 {
		return fmt.Errorf("goal_width_m must be positive, got %f", *c.GoalWidthMeters)
	}
	if c.FrameRate != nil && *c.FrameRate <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %f", *c.FrameRate)
	}
	if c.MaxCoastFrames != nil && *c.MaxCoastFrames < 1 {
		return fmt.Errorf("max_coast_frames must be at least 1, got %d", *c.MaxCoastFrames)
	}
	if c.GatingDistanceSquared != nil && *c.GatingDistanceSquared <= 0 {
		return fmt.Errorf("gating_distance_squared must be positive, got %f", *c.GatingDistanceSquared)
	}
	if c.SmoothingWindow != nil && *c.SmoothingWindow < 1 {
		return fmt.Errorf("smoothing_window must be at least 1, got %d", *c.SmoothingWindow)
	}
	if c.QueueCapacity != nil && *c.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", *c.QueueCapacity)
	}

	// The control band must sit strictly below the kick threshold or the
	// event detector cannot distinguish a kick from dribbling noise.
	controlMax := c.GetControlSpeedMaxMps()
	if kick := c.GetKickSpeedMps(); kick <= controlMax {
		return fmt.Errorf("kick_speed_mps (%f) must exceed control_speed_max_mps (%f)", kick, controlMax)
	}

	for name, v := range map[string]*string{
		"sprint_min_duration": c.SprintMinDuration,
		"transit_timeout":     c.TransitTimeout,
		"tactical_window":     c.TacticalWindow,
		"tactical_stride":     c.TacticalStride,
	} {
		if v != nil && *v != "" {
			d, err := time.ParseDuration(*v)
			if err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
			// A zero window or stride would stall the consumers that slide
			// by it.
			if d <= 0 {
				return fmt.Errorf("%s must be positive, got '%s'", name, *v)
			}
		}
	}

	return nil
}

// GetPitchLengthMeters returns the pitch_length_m value or the default.
func (c *AnalysisConfig) GetPitchLengthMeters() float64 {
	if c.PitchLengthMeters == nil {
		return 105.0
	}
	return *c.PitchLengthMeters
}

// GetPitchWidthMeters returns the pitch_width_m value or the default.
func (c *AnalysisConfig) GetPitchWidthMeters() float64 {
	if c.PitchWidthMeters == nil {
		return 68.0
	}
	return *c.PitchWidthMeters
}

// GetGoalWidthMeters returns the goal_width_m value or the default.
func (c *AnalysisConfig) GetGoalWidthMeters() float64 {
	if c.GoalWidthMeters == nil {
		return 7.32
	}
	return *c.GoalWidthMeters
}

// GetHeatmapGridSize returns the heatmap_grid_size value or the default.
func (c *AnalysisConfig) GetHeatmapGridSize() int {
	if c.HeatmapGridSize == nil {
		return 10
	}
	return *c.HeatmapGridSize
}

// GetFrameRate returns the frame_rate value or the default.
func (c *AnalysisConfig) GetFrameRate() float64 {
	if c.FrameRate == nil {
		return 30.0
	}
	return *c.FrameRate
}

// GetGatingDistanceSquared returns the gating_distance_squared value or the default.
func (c *AnalysisConfig) GetGatingDistanceSquared() float64 {
	if c.GatingDistanceSquared == nil {
		return 16.0
	}
	return *c.GatingDistanceSquared
}

// GetMaxCoastFrames returns the max_coast_frames value or the default.
func (c *AnalysisConfig) GetMaxCoastFrames() int {
	if c.MaxCoastFrames == nil {
		return 30
	}
	return *c.MaxCoastFrames
}

// GetProcessNoisePos returns the process_noise_pos value or the default.
func (c *AnalysisConfig) GetProcessNoisePos() float64 {
	if c.ProcessNoisePos == nil {
		return 0.5
	}
	return *c.ProcessNoisePos
}

// GetProcessNoiseVel returns the process_noise_vel value or the default.
func (c *AnalysisConfig) GetProcessNoiseVel() float64 {
	if c.ProcessNoiseVel == nil {
		return 0.1
	}
	return *c.ProcessNoiseVel
}

// GetMeasurementNoise returns the measurement_noise value or the default.
func (c *AnalysisConfig) GetMeasurementNoise() float64 {
	if c.MeasurementNoise == nil {
		return 0.25
	}
	return *c.MeasurementNoise
}

// GetCoastCovInflation returns the coast_cov_inflation value or the default.
func (c *AnalysisConfig) GetCoastCovInflation() float64 {
	if c.CoastCovInflation == nil {
		return 0.5
	}
	return *c.CoastCovInflation
}

// GetMaxCovarianceDiag returns the max_covariance_diag value or the default.
func (c *AnalysisConfig) GetMaxCovarianceDiag() float64 {
	if c.MaxCovarianceDiag == nil {
		return 50.0
	}
	return *c.MaxCovarianceDiag
}

// GetMaxPositionJumpMeters returns the max_position_jump_m value or the default.
func (c *AnalysisConfig) GetMaxPositionJumpMeters() float64 {
	if c.MaxPositionJumpMeters == nil {
		return 10.0
	}
	return *c.MaxPositionJumpMeters
}

// GetMaxPlayerSpeedMps returns the max_player_speed_mps value or the default.
// 11 m/s is just above the fastest recorded sprint speeds.
func (c *AnalysisConfig) GetMaxPlayerSpeedMps() float64 {
	if c.MaxPlayerSpeedMps == nil {
		return 11.0
	}
	return *c.MaxPlayerSpeedMps
}

// GetMaxBallSpeedMps returns the max_ball_speed_mps value or the default.
func (c *AnalysisConfig) GetMaxBallSpeedMps() float64 {
	if c.MaxBallSpeedMps == nil {
		return 40.0
	}
	return *c.MaxBallSpeedMps
}

// GetMinDetectionConfidence returns the min_detection_confidence value or the default.
func (c *AnalysisConfig) GetMinDetectionConfidence() float64 {
	if c.MinDetectionConfidence == nil {
		return 0.1
	}
	return *c.MinDetectionConfidence
}

// GetBallMinConfidence returns the ball_min_confidence value or the default.
// The ball pipeline runs at a higher confidence floor than players since
// exactly one ball identity should exist at a time.
func (c *AnalysisConfig) GetBallMinConfidence() float64 {
	if c.BallMinConfidence == nil {
		return 0.5
	}
	return *c.BallMinConfidence
}

// GetMaxTracks returns the max_tracks value or the default.
func (c *AnalysisConfig) GetMaxTracks() int {
	if c.MaxTracks == nil {
		return 64
	}
	return *c.MaxTracks
}

// GetMaxPredictDt returns the max_predict_dt value (seconds) or the default.
func (c *AnalysisConfig) GetMaxPredictDt() float64 {
	if c.MaxPredictDt == nil {
		return 0.5
	}
	return *c.MaxPredictDt
}

// GetSmoothingWindow returns the smoothing_window value or the default.
func (c *AnalysisConfig) GetSmoothingWindow() int {
	if c.SmoothingWindow == nil {
		return 5
	}
	return *c.SmoothingWindow
}

// GetSprintSpeedMps returns the sprint_speed_mps value or the default.
func (c *AnalysisConfig) GetSprintSpeedMps() float64 {
	if c.SprintSpeedMps == nil {
		return 7.0
	}
	return *c.SprintSpeedMps
}

// GetSprintMinDuration parses and returns the sprint_min_duration as a time.Duration.
func (c *AnalysisConfig) GetSprintMinDuration() time.Duration {
	if c.SprintMinDuration == nil || *c.SprintMinDuration == "" {
		return 1 * time.Second
	}
	d, err := time.ParseDuration(*c.SprintMinDuration)
	if err != nil {
		return 1 * time.Second
	}
	return d
}

// GetHighIntensitySpeedMps returns the high_intensity_speed_mps value or the default.
func (c *AnalysisConfig) GetHighIntensitySpeedMps() float64 {
	if c.HighIntensitySpeedMps == nil {
		return 5.5
	}
	return *c.HighIntensitySpeedMps
}

// GetControlRadiusMeters returns the control_radius_m value or the default.
func (c *AnalysisConfig) GetControlRadiusMeters() float64 {
	if c.ControlRadiusMeters == nil {
		return 2.0
	}
	return *c.ControlRadiusMeters
}

// GetControlSpeedMaxMps returns the control_speed_max_mps value or the default.
func (c *AnalysisConfig) GetControlSpeedMaxMps() float64 {
	if c.ControlSpeedMaxMps == nil {
		return 2.5
	}
	return *c.ControlSpeedMaxMps
}

// GetKickSpeedMps returns the kick_speed_mps value or the default.
func (c *AnalysisConfig) GetKickSpeedMps() float64 {
	if c.KickSpeedMps == nil {
		return 8.0
	}
	return *c.KickSpeedMps
}

// GetTransitTimeout parses and returns the transit_timeout as a time.Duration.
func (c *AnalysisConfig) GetTransitTimeout() time.Duration {
	if c.TransitTimeout == nil || *c.TransitTimeout == "" {
		return 3 * time.Second
	}
	d, err := time.ParseDuration(*c.TransitTimeout)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

// GetGoalAimHalfWidthM returns the goal_aim_half_width_m value or the default.
func (c *AnalysisConfig) GetGoalAimHalfWidthM() float64 {
	if c.GoalAimHalfWidthM == nil {
		return 12.0
	}
	return *c.GoalAimHalfWidthM
}

// GetShortPassMaxMeters returns the short_pass_max_m value or the default.
func (c *AnalysisConfig) GetShortPassMaxMeters() float64 {
	if c.ShortPassMaxMeters == nil {
		return 15.0
	}
	return *c.ShortPassMaxMeters
}

// GetMediumPassMaxMeters returns the medium_pass_max_m value or the default.
func (c *AnalysisConfig) GetMediumPassMaxMeters() float64 {
	if c.MediumPassMaxMeters == nil {
		return 30.0
	}
	return *c.MediumPassMaxMeters
}

// GetTacticalWindow parses and returns the tactical_window as a time.Duration.
func (c *AnalysisConfig) GetTacticalWindow() time.Duration {
	if c.TacticalWindow == nil || *c.TacticalWindow == "" {
		return 60 * time.Second
	}
	d, err := time.ParseDuration(*c.TacticalWindow)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetTacticalStride parses and returns the tactical_stride as a time.Duration.
func (c *AnalysisConfig) GetTacticalStride() time.Duration {
	if c.TacticalStride == nil || *c.TacticalStride == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(*c.TacticalStride)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetQueueCapacity returns the queue_capacity value or the default.
func (c *AnalysisConfig) GetQueueCapacity() int {
	if c.QueueCapacity == nil {
		return 256
	}
	return *c.QueueCapacity
}

// Pointer helpers for building configs in code.
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }
