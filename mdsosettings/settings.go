// Package mdsosettings is the enumerated options tree consumed by the
// optimizer and frame tracker: loss weighting constants, LM acceptance
// thresholds, pattern/border sizes, and affine-light bounds. Loaded via
// viper, in the teacher pack's configuration-loader idiom.
package mdsosettings

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// ConfigFileName is the base name (without extension) searched for on disk.
const ConfigFileName = "mdso"

// EnvPrefix is the prefix recognized for environment variable overrides,
// e.g. MDSO_OPTIMIZATION_MAXABSDELTAD.
const EnvPrefix = "MDSO"

// ResidualWeighting controls the gradient-based weighting of residual samples.
type ResidualWeighting struct {
	// C is the gradient weight constant: a sample is weighted by
	// C/sqrt(C^2+|grad I|^2).
	C float64 `mapstructure:"c" json:"c"`
	// UseGradientWeights enables the additional gradient-magnitude-based
	// down-weighting of near-edge samples.
	UseGradientWeights bool `mapstructure:"use_gradient_weights" json:"use_gradient_weights"`
}

// Intensity holds the robust-loss constants for intensity residuals:
// OutlierDiff is the Huber transition point, Eps the floor factor applied
// when computing loss weights.
type Intensity struct {
	OutlierDiff float64 `mapstructure:"outlier_diff" json:"outlier_diff"`
	Eps         float64 `mapstructure:"eps" json:"eps"`
}

// Optimization controls the Levenberg-Marquardt step controller.
type Optimization struct {
	InitialLambda            float64 `mapstructure:"initial_lambda" json:"initial_lambda"`
	AcceptedQuality          float64 `mapstructure:"accepted_quality" json:"accepted_quality"`
	MinLambdaMultiplier      float64 `mapstructure:"min_lambda_multiplier" json:"min_lambda_multiplier"`
	InitialFailMultiplier    float64 `mapstructure:"initial_fail_multiplier" json:"initial_fail_multiplier"`
	FailMultiplierMultiplier float64 `mapstructure:"fail_multiplier_multiplier" json:"fail_multiplier_multiplier"`
	MaxAbsDeltaD             float64 `mapstructure:"max_abs_delta_d" json:"max_abs_delta_d"`
	MaxIterations            int     `mapstructure:"max_iterations" json:"max_iterations"`
}

// Depth bounds the representable inverse-depth parametrization (I4):
// logDepth is kept within [log(Min), log(Max)] by Parameters.Update.
type Depth struct {
	Min float64 `mapstructure:"min" json:"min"`
	Max float64 `mapstructure:"max" json:"max"`
}

// AffineLight bounds the a,b parameters accepted from a single-frame track.
type AffineLight struct {
	MinA           float64 `mapstructure:"min_a" json:"min_a"`
	MaxA           float64 `mapstructure:"max_a" json:"max_a"`
	MinB           float64 `mapstructure:"min_b" json:"min_b"`
	MaxB           float64 `mapstructure:"max_b" json:"max_b"`
	OptimizeAffine bool    `mapstructure:"optimize_affine" json:"optimize_affine"`
}

// Settings is the full enumerated options tree.
type Settings struct {
	ResidualWeighting ResidualWeighting `mapstructure:"residual_weighting" json:"residual_weighting"`
	Intensity         Intensity         `mapstructure:"intensity" json:"intensity"`
	Optimization      Optimization      `mapstructure:"optimization" json:"optimization"`
	Depth             Depth             `mapstructure:"depth" json:"depth"`
	AffineLight       AffineLight       `mapstructure:"affine_light" json:"affine_light"`
	PatternBorderSize int               `mapstructure:"pattern_border_size" json:"pattern_border_size"`
	NumPyramidLevels  int               `mapstructure:"num_pyramid_levels" json:"num_pyramid_levels"`
	PyramidSigma      float64           `mapstructure:"pyramid_sigma" json:"pyramid_sigma"`
}

// Validate applies the bounds checks a malformed config could violate.
func (s *Settings) Validate() error {
	if s.Optimization.MaxIterations <= 0 {
		return fmt.Errorf("optimization.max_iterations must be positive, got %d", s.Optimization.MaxIterations)
	}
	if s.Optimization.AcceptedQuality <= 0 || s.Optimization.AcceptedQuality >= 1 {
		return fmt.Errorf("optimization.accepted_quality must be in (0,1), got %f", s.Optimization.AcceptedQuality)
	}
	if s.NumPyramidLevels <= 0 {
		return fmt.Errorf("num_pyramid_levels must be positive, got %d", s.NumPyramidLevels)
	}
	if s.Depth.Min <= 0 || s.Depth.Max <= s.Depth.Min {
		return fmt.Errorf("depth.min/depth.max must satisfy 0 < min < max, got %f/%f", s.Depth.Min, s.Depth.Max)
	}
	return nil
}

// Default returns the built-in default settings, matching the constant
// values the original system initializes its global settings struct with.
func Default() Settings {
	return Settings{
		ResidualWeighting: ResidualWeighting{C: 9.0, UseGradientWeights: true},
		Intensity:         Intensity{OutlierDiff: 12.0, Eps: 1e-3},
		Optimization: Optimization{
			InitialLambda:            1e-1,
			AcceptedQuality:          0.25,
			MinLambdaMultiplier:      1.0 / 3.0,
			InitialFailMultiplier:    2.0,
			FailMultiplierMultiplier: 2.0,
			MaxAbsDeltaD:             3.0,
			MaxIterations:            6,
		},
		Depth:             Depth{Min: 1e-3, Max: 1e3},
		AffineLight:       AffineLight{MinA: -0.5, MaxA: 0.5, MinB: -60, MaxB: 60, OptimizeAffine: true},
		PatternBorderSize: 2,
		NumPyramidLevels:  6,
		PyramidSigma:      1.0,
	}
}

// Loader loads Settings from a config file, environment variables, and
// falls back to Default() for anything unset, mirroring the teacher pack's
// config.Loader: SetConfigName/SetConfigType, env-prefix binding, then
// Unmarshal and Validate.
type Loader struct {
	v *viper.Viper
}

// NewLoader returns a Loader using viper's global instance.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// Load reads ConfigFileName from the current directory and /etc/mdso, plus
// MDSO_-prefixed environment variables, over Default()'s values.
func (l *Loader) Load() (*Settings, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.v.AddConfigPath(".")
	l.v.AddConfigPath("/etc/mdso")
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()

	settings := Default()
	if err := l.v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling defaults: %w", err)
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := l.v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &settings, nil
}
