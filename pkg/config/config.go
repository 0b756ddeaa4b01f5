// Package config loads pipeline settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"rivernet/pkg/interp"
	"rivernet/pkg/power"
	"rivernet/pkg/segment"
	"rivernet/pkg/station"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Config holds every pipeline setting.
type Config struct {
	Threshold     float64 `yaml:"threshold" validate:"gt=0"`
	DistanceUnit  string  `yaml:"distance_unit" validate:"oneof=m km ft mi"`
	OutletID      int64   `yaml:"outlet_id" validate:"min=0"`
	NodeTolerance float64 `yaml:"node_tolerance" validate:"gte=0"`
	Strict        bool    `yaml:"strict"`
	Geographic    bool    `yaml:"geographic"`

	Smoothing     SmoothingConfig     `yaml:"smoothing"`
	Interpolation InterpolationConfig `yaml:"interpolation"`
	Stations      StationConfig       `yaml:"stations"`
	Power         PowerConfig         `yaml:"power"`
}

// SmoothingConfig selects the attributes to smooth within segments.
type SmoothingConfig struct {
	Fields         []string `yaml:"fields" validate:"dive,required"`
	Window         int      `yaml:"window" validate:"gte=0"`
	TargetDistance float64  `yaml:"target_distance" validate:"gt=0"`
	Resolution     float64  `yaml:"resolution" validate:"gt=0"`
	Suffix         string   `yaml:"suffix" validate:"required"`
}

// InterpolationConfig selects the attributes to interpolate between stations.
type InterpolationConfig struct {
	Fields []string `yaml:"fields" validate:"dive,required"`
	Prefix string   `yaml:"prefix" validate:"required"`

	// Slope adds a traced slope column "S_" + prefix + field for each
	// interpolated field.
	Slope bool `yaml:"slope"`
}

// StationConfig configures station snapping.
type StationConfig struct {
	MaxSnapDistance float64 `yaml:"max_snap_distance" validate:"gt=0"`
}

// PowerConfig configures the stream power stage.
type PowerConfig struct {
	Enabled         bool        `yaml:"enabled"`
	UnitWeight      float64     `yaml:"unit_weight" validate:"gt=0"`
	SlopeField      string      `yaml:"slope_field" validate:"required"`
	DischargeField  string      `yaml:"discharge_field"`
	ImperviousField string      `yaml:"impervious_field"`
	Suffix          string      `yaml:"suffix"`
	Gradient        bool        `yaml:"gradient"`
	Discharge       Coeffs      `yaml:"discharge"`
	Width           WidthCoeffs `yaml:"width"`

	// Bridge enables scour and overtopping ratios when set.
	Bridge *BridgeConfig `yaml:"bridge"`
}

// BridgeConfig names the bridge hydraulics columns.
type BridgeConfig struct {
	BridgeDischarge   string `yaml:"bridge_discharge" validate:"required"`
	UpstreamDischarge string `yaml:"upstream_discharge" validate:"required"`
	TotalDischarge    string `yaml:"total_discharge" validate:"required"`
	UpstreamWidth     string `yaml:"upstream_width" validate:"required"`
	BridgeWidth       string `yaml:"bridge_width" validate:"required"`
}

// Coeffs are the regional discharge coefficients.
type Coeffs struct {
	C float64 `yaml:"c" validate:"gt=0"`
	X float64 `yaml:"x" validate:"gt=0"`
	B float64 `yaml:"b" validate:"gte=0"`
}

// WidthCoeffs are the hydraulic geometry width coefficients.
type WidthCoeffs struct {
	A float64 `yaml:"a" validate:"gt=0"`
	B float64 `yaml:"b" validate:"gt=0"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	p := power.DefaultParams()
	return Config{
		Threshold:     segment.DefaultThreshold,
		DistanceUnit:  "m",
		NodeTolerance: 0.001,
		Smoothing: SmoothingConfig{
			Fields:         []string{power.FieldSlope},
			TargetDistance: 500,
			Resolution:     30,
			Suffix:         segment.DefaultSuffix,
		},
		Interpolation: InterpolationConfig{
			Prefix: interp.DefaultPrefix,
		},
		Stations: StationConfig{
			MaxSnapDistance: station.DefaultMaxSnapDistance,
		},
		Power: PowerConfig{
			Enabled:    true,
			UnitWeight: p.UnitWeight,
			SlopeField: p.SlopeField,
			Gradient:   p.Gradient,
			Discharge:  Coeffs{C: p.Discharge.C, X: p.Discharge.X, B: p.Discharge.B},
			Width:      WidthCoeffs{A: p.Width.A, B: p.Width.B},
		},
	}
}

// Load reads a YAML config file over the defaults, applies RIVERNET_*
// environment overrides and validates the result. An empty path yields the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("RIVERNET_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RIVERNET_THRESHOLD: %w", err)
		}
		cfg.Threshold = f
	}
	if v := os.Getenv("RIVERNET_DISTANCE_UNIT"); v != "" {
		cfg.DistanceUnit = v
	}
	if v := os.Getenv("RIVERNET_STRICT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RIVERNET_STRICT: %w", err)
		}
		cfg.Strict = b
	}
	return nil
}

// Validate checks field ranges and the smoothing window.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	if c.Smoothing.Window > 0 && c.Smoothing.Window%2 == 0 {
		return fmt.Errorf("smoothing.window: must be odd, got %d", c.Smoothing.Window)
	}
	return nil
}

// Window returns the smoothing window, deriving it from the target distance
// and resolution when it is not set explicitly.
func (c *Config) Window() (int, error) {
	if c.Smoothing.Window > 0 {
		return c.Smoothing.Window, nil
	}
	return segment.WindowSize(c.Smoothing.TargetDistance, c.Smoothing.Resolution)
}

// PowerParams converts the power section into calculator parameters.
func (c *Config) PowerParams() power.Params {
	p := c.Power
	return power.Params{
		UnitWeight:      p.UnitWeight,
		SlopeField:      p.SlopeField,
		DischargeField:  p.DischargeField,
		ImperviousField: p.ImperviousField,
		Discharge:       power.DischargeCoeffs{C: p.Discharge.C, X: p.Discharge.X, B: p.Discharge.B},
		Width:           power.WidthCoeffs{A: p.Width.A, B: p.Width.B},
		Suffix:          p.Suffix,
		Gradient:        p.Gradient,
	}
}

// BridgeFields returns the bridge column names, or false when bridge ratios
// are not configured.
func (c *Config) BridgeFields() (power.BridgeFields, bool) {
	b := c.Power.Bridge
	if b == nil {
		return power.BridgeFields{}, false
	}
	return power.BridgeFields{
		BridgeDischarge:   b.BridgeDischarge,
		UpstreamDischarge: b.UpstreamDischarge,
		TotalDischarge:    b.TotalDischarge,
		UpstreamWidth:     b.UpstreamWidth,
		BridgeWidth:       b.BridgeWidth,
	}, true
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	e := verrs[0]
	switch e.Tag() {
	case "required":
		return fmt.Errorf("%s: field is required", e.Namespace())
	case "gt":
		return fmt.Errorf("%s: must be greater than %s", e.Namespace(), e.Param())
	case "gte", "min":
		return fmt.Errorf("%s: must be at least %s", e.Namespace(), e.Param())
	case "oneof":
		return fmt.Errorf("%s: must be one of [%s], got %v", e.Namespace(), e.Param(), e.Value())
	}
	return fmt.Errorf("%s: failed %s validation", e.Namespace(), e.Tag())
}
