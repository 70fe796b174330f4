package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/mcopt/internal/calib"
	"github.com/banshee-data/mcopt/internal/eventgen"
	"github.com/banshee-data/mcopt/internal/mcmin"
	"github.com/banshee-data/mcopt/internal/padplane"
	"github.com/banshee-data/mcopt/internal/tracker"
)

// DefaultConfigPath is the path to the canonical fit defaults file.
const DefaultConfigPath = "config/fit.defaults.json"

// FitConfig is the JSON configuration for a simulation and fit run.
//
// Detector and electronics constants have no safe defaults: GeneratorConfig
// fails if any of them is missing. Pad plane, tracker and minimizer settings
// fall back to the defaults returned by the Get* methods.
type FitConfig struct {
	// Event generator (required)
	DriftVelocity   *[3]float64 `json:"drift_velocity,omitempty"` // cm/µs
	Clock           *float64    `json:"clock,omitempty"`          // Hz
	Shape           *float64    `json:"shape,omitempty"`          // s
	MassNum         *int        `json:"mass_num,omitempty"`
	Ionization      *float64    `json:"ionization,omitempty"` // eV
	MicromegasGain  *float64    `json:"micromegas_gain,omitempty"`
	ElectronicsGain *float64    `json:"electronics_gain,omitempty"`
	Tilt            *float64    `json:"tilt,omitempty"` // rad
	DiffusionSigma  *float64    `json:"diffusion_sigma,omitempty"`
	OverflowPolicy  *string     `json:"overflow_policy,omitempty"` // "drop" or "error"

	// Pad plane
	PadCols  *int     `json:"pad_cols,omitempty"`
	PadRows  *int     `json:"pad_rows,omitempty"`
	PadPitch *float64 `json:"pad_pitch,omitempty"` // m

	// Tracker
	StoppingPower *float64 `json:"stopping_power,omitempty"` // MeV/m
	StepSize      *float64 `json:"step_size,omitempty"`      // m
	ChamberLength *float64 `json:"chamber_length,omitempty"` // m
	ChamberRadius *float64 `json:"chamber_radius,omitempty"` // m

	// Minimizer
	NumIters  *int     `json:"num_iters,omitempty"`
	NumPts    *int     `json:"num_pts,omitempty"`
	RedFactor *float64 `json:"red_factor,omitempty"`
	Workers   *int     `json:"workers,omitempty"`
	Seed      *uint64  `json:"seed,omitempty"`

	// Store
	StorePath *string `json:"store_path,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// LoadFitConfig loads a FitConfig from a JSON file. The file must have a
// .json extension and be at most 1 MB. Omitted fields stay nil.
func LoadFitConfig(path string) (*FitConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &FitConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory or
// one of its parents. It panics if the file cannot be loaded and is meant for
// tests.
func MustLoadDefaultConfig() *FitConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadFitConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set. Missing required fields are
// reported by GeneratorConfig instead.
func (c *FitConfig) Validate() error {
	if c.OverflowPolicy != nil {
		if _, err := eventgen.ParseOverflowPolicy(*c.OverflowPolicy); err != nil {
			return err
		}
	}
	if c.RedFactor != nil && !(*c.RedFactor > 0 && *c.RedFactor < 1) {
		return fmt.Errorf("red_factor must be in (0, 1), got %v", *c.RedFactor)
	}
	for name, v := range map[string]*int{
		"num_iters": c.NumIters,
		"num_pts":   c.NumPts,
		"pad_cols":  c.PadCols,
		"pad_rows":  c.PadRows,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	for name, v := range map[string]*float64{
		"pad_pitch":      c.PadPitch,
		"stopping_power": c.StoppingPower,
		"step_size":      c.StepSize,
		"chamber_length": c.ChamberLength,
		"chamber_radius": c.ChamberRadius,
	} {
		if v != nil && (!(*v > 0) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%s must be positive and finite, got %v", name, *v)
		}
	}
	return nil
}

// GeneratorConfig builds the event generator configuration. It returns an
// error naming every missing required field.
func (c *FitConfig) GeneratorConfig() (eventgen.Config, error) {
	var missing []string
	need := func(name string, set bool) {
		if !set {
			missing = append(missing, name)
		}
	}
	need("drift_velocity", c.DriftVelocity != nil)
	need("clock", c.Clock != nil)
	need("shape", c.Shape != nil)
	need("mass_num", c.MassNum != nil)
	need("ionization", c.Ionization != nil)
	need("micromegas_gain", c.MicromegasGain != nil)
	need("electronics_gain", c.ElectronicsGain != nil)
	need("tilt", c.Tilt != nil)
	need("diffusion_sigma", c.DiffusionSigma != nil)
	if len(missing) > 0 {
		return eventgen.Config{}, fmt.Errorf("%w: missing %s", eventgen.ErrInvalidConfig, strings.Join(missing, ", "))
	}

	policy, err := eventgen.ParseOverflowPolicy(c.GetOverflowPolicy())
	if err != nil {
		return eventgen.Config{}, err
	}
	vd := *c.DriftVelocity
	cfg := eventgen.Config{
		DriftVelocity:   calib.Vec3{X: vd[0], Y: vd[1], Z: vd[2]},
		Clock:           *c.Clock,
		Shape:           *c.Shape,
		MassNum:         *c.MassNum,
		Ionization:      *c.Ionization,
		MicromegasGain:  *c.MicromegasGain,
		ElectronicsGain: *c.ElectronicsGain,
		Tilt:            *c.Tilt,
		DiffSigma:       *c.DiffusionSigma,
		Overflow:        policy,
	}
	return cfg, cfg.Validate()
}

// PadPlane builds a grid pad plane centred on the beam axis.
func (c *FitConfig) PadPlane() (*padplane.GridPlane, error) {
	return padplane.NewCenteredGridPlane(c.GetPadCols(), c.GetPadRows(), c.GetPadPitch())
}

// Generator builds an event generator from the generator and pad plane fields.
func (c *FitConfig) Generator() (*eventgen.Generator, error) {
	cfg, err := c.GeneratorConfig()
	if err != nil {
		return nil, err
	}
	pads, err := c.PadPlane()
	if err != nil {
		return nil, err
	}
	return eventgen.New(pads, cfg)
}

// TrackerConfig builds the line tracker configuration. mass_num is required.
func (c *FitConfig) TrackerConfig() (tracker.Config, error) {
	if c.MassNum == nil {
		return tracker.Config{}, fmt.Errorf("tracker: missing mass_num")
	}
	cfg := tracker.Config{
		MassNum:       *c.MassNum,
		StoppingPower: c.GetStoppingPower(),
		StepSize:      c.GetStepSize(),
		ChamberLength: c.GetChamberLength(),
		ChamberRadius: c.GetChamberRadius(),
	}
	return cfg, cfg.Validate()
}

// ApplyTo copies the loop settings into req.
func (c *FitConfig) ApplyTo(req *mcmin.Request) {
	req.NumIters = c.GetNumIters()
	req.NumPts = c.GetNumPts()
	req.RedFactor = c.GetRedFactor()
	req.Seed = c.GetSeed()
}

// GetOverflowPolicy returns the overflow_policy value or "drop".
func (c *FitConfig) GetOverflowPolicy() string {
	if c.OverflowPolicy == nil || *c.OverflowPolicy == "" {
		return "drop"
	}
	return *c.OverflowPolicy
}

// GetPadCols returns the pad_cols value or the default.
func (c *FitConfig) GetPadCols() int {
	if c.PadCols == nil {
		return 128
	}
	return *c.PadCols
}

// GetPadRows returns the pad_rows value or the default.
func (c *FitConfig) GetPadRows() int {
	if c.PadRows == nil {
		return 80
	}
	return *c.PadRows
}

// GetPadPitch returns the pad_pitch value or the default.
func (c *FitConfig) GetPadPitch() float64 {
	if c.PadPitch == nil {
		return 0.004
	}
	return *c.PadPitch
}

// GetStoppingPower returns the stopping_power value or the default.
func (c *FitConfig) GetStoppingPower() float64 {
	if c.StoppingPower == nil {
		return 100
	}
	return *c.StoppingPower
}

// GetStepSize returns the step_size value or the default.
func (c *FitConfig) GetStepSize() float64 {
	if c.StepSize == nil {
		return 0.001
	}
	return *c.StepSize
}

// GetChamberLength returns the chamber_length value or the default.
func (c *FitConfig) GetChamberLength() float64 {
	if c.ChamberLength == nil {
		return 1.0
	}
	return *c.ChamberLength
}

// GetChamberRadius returns the chamber_radius value or the default.
func (c *FitConfig) GetChamberRadius() float64 {
	if c.ChamberRadius == nil {
		return 0.275
	}
	return *c.ChamberRadius
}

// GetNumIters returns the num_iters value or the default.
func (c *FitConfig) GetNumIters() int {
	if c.NumIters == nil {
		return 10
	}
	return *c.NumIters
}

// GetNumPts returns the num_pts value or the default.
func (c *FitConfig) GetNumPts() int {
	if c.NumPts == nil {
		return 200
	}
	return *c.NumPts
}

// GetRedFactor returns the red_factor value or the default.
func (c *FitConfig) GetRedFactor() float64 {
	if c.RedFactor == nil {
		return 0.8
	}
	return *c.RedFactor
}

// GetWorkers returns the workers value. Zero means GOMAXPROCS.
func (c *FitConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetSeed returns the seed value or the default.
func (c *FitConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}

// GetStorePath returns the store_path value or the default.
func (c *FitConfig) GetStorePath() string {
	if c.StorePath == nil || *c.StorePath == "" {
		return "mcopt.db"
	}
	return *c.StorePath
}
