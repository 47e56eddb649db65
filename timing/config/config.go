// Package config defines the configuration of the simulated processor:
// pipeline widths, buffer sizes, functional units, cache geometry, branch
// predictor parameters and the backing memory.
//
// Configurations are read from JSON or YAML files. Fields missing from a
// file keep their defaults.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.yaml.in/yaml/v3"

	"github.com/sarchlab/rvsim/insts"
)

// ErrInvalidConfig is the cause of every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Replacement policy names.
const (
	ReplacementLRU    = "LRU"
	ReplacementRandom = "Random"
)

// CounterStates lists the predictor counter states from strongly not taken
// to strongly taken.
var CounterStates = []string{
	"StronglyNotTaken",
	"WeaklyNotTaken",
	"WeaklyTaken",
	"StronglyTaken",
}

// CapabilityConfig is one operation category a unit supports and its
// latency in cycles.
type CapabilityConfig struct {
	Name    string `json:"name" yaml:"name"`
	Latency uint64 `json:"latency" yaml:"latency"`
}

// UnitConfig describes one functional unit.
type UnitConfig struct {
	Name string `json:"name" yaml:"name"`
	// Class is one of FX, FP, Branch, LS or Memory.
	Class        string             `json:"class" yaml:"class"`
	Capabilities []CapabilityConfig `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// Latency returns the latency of the named capability and whether the unit
// supports it.
func (u UnitConfig) Latency(capability string) (uint64, bool) {
	for _, c := range u.Capabilities {
		if strings.EqualFold(c.Name, capability) {
			return c.Latency, true
		}
	}
	return 0, false
}

// CacheConfig holds the data cache geometry and policy.
type CacheConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Lines is the total number of lines.
	Lines         int `json:"lines" yaml:"lines"`
	Associativity int `json:"associativity" yaml:"associativity"`
	// LineSize is the line size in bytes.
	LineSize    int    `json:"lineSize" yaml:"lineSize"`
	Replacement string `json:"replacement" yaml:"replacement"`
	// WriteBack selects write-back; otherwise stores write through.
	WriteBack bool `json:"writeBack" yaml:"writeBack"`
	// AccessDelay is the hit latency in cycles.
	AccessDelay uint64 `json:"accessDelay" yaml:"accessDelay"`
}

// MemoryConfig describes the backing memory.
type MemoryConfig struct {
	Size         uint64 `json:"size" yaml:"size"`
	LoadLatency  uint64 `json:"loadLatency" yaml:"loadLatency"`
	StoreLatency uint64 `json:"storeLatency" yaml:"storeLatency"`
}

// PredictorConfig holds the GShare and BTB parameters.
type PredictorConfig struct {
	BTBSize      int    `json:"btbSize" yaml:"btbSize"`
	PHTSize      int    `json:"phtSize" yaml:"phtSize"`
	HistoryBits  int    `json:"historyBits" yaml:"historyBits"`
	DefaultState string `json:"defaultState" yaml:"defaultState"`
}

// Config is the complete processor configuration.
type Config struct {
	FetchWidth  int `json:"fetchWidth" yaml:"fetchWidth"`
	CommitWidth int `json:"commitWidth" yaml:"commitWidth"`
	// BranchFollowLimit is how many predicted-taken branches fetch may
	// follow within one cycle.
	BranchFollowLimit int `json:"branchFollowLimit" yaml:"branchFollowLimit"`

	ROBSize              int `json:"robSize" yaml:"robSize"`
	LoadBufferSize       int `json:"loadBufferSize" yaml:"loadBufferSize"`
	StoreBufferSize      int `json:"storeBufferSize" yaml:"storeBufferSize"`
	IssueWindowSize      int `json:"issueWindowSize" yaml:"issueWindowSize"`
	SpeculativeRegisters int `json:"speculativeRegisters" yaml:"speculativeRegisters"`

	Units     []UnitConfig    `json:"units" yaml:"units"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Memory    MemoryConfig    `json:"memory" yaml:"memory"`
	Predictor PredictorConfig `json:"predictor" yaml:"predictor"`

	// Seed initializes the random replacement policy.
	Seed uint64 `json:"seed" yaml:"seed"`
}

func caps(kv ...interface{}) []CapabilityConfig {
	out := make([]CapabilityConfig, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, CapabilityConfig{Name: kv[i].(string), Latency: uint64(kv[i+1].(int))})
	}
	return out
}

// Default returns the reference machine configuration.
func Default() *Config {
	return &Config{
		FetchWidth:           4,
		CommitWidth:          4,
		BranchFollowLimit:    0,
		ROBSize:              64,
		LoadBufferSize:       16,
		StoreBufferSize:      16,
		IssueWindowSize:      16,
		SpeculativeRegisters: 64,
		Units: []UnitConfig{
			{Name: "FX0", Class: "FX", Capabilities: caps(
				"addition", 2, "bitwise", 1, "multiplication", 3, "division", 10, "special", 1)},
			{Name: "FX1", Class: "FX", Capabilities: caps("addition", 2, "bitwise", 1)},
			{Name: "FP0", Class: "FP", Capabilities: caps(
				"addition", 3, "multiplication", 4, "division", 12, "special", 2)},
			{Name: "Branch0", Class: "Branch", Capabilities: caps("addition", 1)},
			{Name: "LS0", Class: "LS", Capabilities: caps("addition", 1)},
			{Name: "MEM0", Class: "Memory"},
			{Name: "MEM1", Class: "Memory"},
		},
		Cache: CacheConfig{
			Enabled:       true,
			Lines:         16,
			Associativity: 2,
			LineSize:      16,
			Replacement:   ReplacementLRU,
			WriteBack:     true,
			AccessDelay:   1,
		},
		Memory: MemoryConfig{
			Size:         64 * 1024,
			LoadLatency:  10,
			StoreLatency: 10,
		},
		Predictor: PredictorConfig{
			BTBSize:      64,
			PHTSize:      256,
			HistoryBits:  4,
			DefaultState: "WeaklyTaken",
		},
		Seed: 1,
	}
}

// Load reads a configuration file, choosing YAML for .yaml/.yml and JSON
// otherwise. The file is applied on top of Default and validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	c := Default()
	if isYAML(path) {
		err = yaml.Unmarshal(data, c)
	} else {
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %s", path)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes the configuration in the format implied by the extension.
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "failed to serialize config")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidConfig, format, args...)
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Validate checks every option and the consistency between them.
func (c *Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"fetchWidth", c.FetchWidth},
		{"commitWidth", c.CommitWidth},
		{"robSize", c.ROBSize},
		{"loadBufferSize", c.LoadBufferSize},
		{"storeBufferSize", c.StoreBufferSize},
		{"issueWindowSize", c.IssueWindowSize},
		{"speculativeRegisters", c.SpeculativeRegisters},
	}
	for _, p := range positive {
		if p.value < 1 {
			return invalid("%s must be >= 1, got %d", p.name, p.value)
		}
	}
	if c.BranchFollowLimit < 0 {
		return invalid("branchFollowLimit must be >= 0")
	}
	if c.SpeculativeRegisters+insts.NumArchRegs > 1<<16 {
		return invalid("speculativeRegisters too large")
	}

	if err := c.validateUnits(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	return c.validatePredictor()
}

func (c *Config) validateUnits() error {
	var served [insts.NumIssueClasses + 1]bool
	names := make(map[string]bool, len(c.Units))
	for _, u := range c.Units {
		if u.Name == "" {
			return invalid("unit without a name")
		}
		if names[u.Name] {
			return invalid("duplicate unit name %q", u.Name)
		}
		names[u.Name] = true

		class, ok := insts.ParseUnitClass(u.Class)
		if !ok {
			return invalid("unit %s: unknown class %q", u.Name, u.Class)
		}
		if class == insts.UnitMemory && len(u.Capabilities) > 0 {
			return invalid("unit %s: memory units take no capabilities", u.Name)
		}
		if class != insts.UnitMemory && len(u.Capabilities) == 0 {
			return invalid("unit %s: no capabilities", u.Name)
		}
		for _, cp := range u.Capabilities {
			if _, ok := insts.ParseCapability(cp.Name); !ok {
				return invalid("unit %s: unknown capability %q", u.Name, cp.Name)
			}
			if cp.Latency < 1 {
				return invalid("unit %s: %s latency must be >= 1", u.Name, cp.Name)
			}
		}
		served[class] = true
	}
	for class, ok := range served {
		if !ok {
			return invalid("no functional unit of class %s", insts.UnitClass(class))
		}
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Memory.Size == 0 {
		return invalid("memory size must be > 0")
	}
	if c.Memory.LoadLatency < 1 || c.Memory.StoreLatency < 1 {
		return invalid("memory latencies must be >= 1")
	}

	cc := c.Cache
	if !cc.Enabled {
		return nil
	}
	if cc.Associativity < 1 || cc.Lines < 1 || cc.Lines%cc.Associativity != 0 {
		return invalid("cache lines (%d) must be a positive multiple of associativity (%d)",
			cc.Lines, cc.Associativity)
	}
	if !isPowerOfTwo(cc.LineSize) {
		return invalid("cache line size %d is not a power of two", cc.LineSize)
	}
	if c.Memory.Size%uint64(cc.LineSize) != 0 {
		return invalid("memory size must be a multiple of the cache line size")
	}
	if cc.Replacement != ReplacementLRU && cc.Replacement != ReplacementRandom {
		return invalid("unknown replacement policy %q", cc.Replacement)
	}
	if cc.AccessDelay < 1 {
		return invalid("cache accessDelay must be >= 1")
	}
	return nil
}

func (c *Config) validatePredictor() error {
	p := c.Predictor
	if !isPowerOfTwo(p.BTBSize) {
		return invalid("btbSize %d is not a power of two", p.BTBSize)
	}
	if !isPowerOfTwo(p.PHTSize) {
		return invalid("phtSize %d is not a power of two", p.PHTSize)
	}
	if p.HistoryBits < 1 || p.HistoryBits > 16 {
		return invalid("historyBits must be in 1..16, got %d", p.HistoryBits)
	}
	if CounterStateIndex(p.DefaultState) < 0 {
		return invalid("unknown predictor state %q", p.DefaultState)
	}
	return nil
}

// CounterStateIndex returns the position of a state name in CounterStates,
// or -1.
func CounterStateIndex(name string) int {
	for i, s := range CounterStates {
		if strings.EqualFold(s, name) {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	out := *c
	out.Units = make([]UnitConfig, len(c.Units))
	for i, u := range c.Units {
		out.Units[i] = u
		out.Units[i].Capabilities = append([]CapabilityConfig(nil), u.Capabilities...)
	}
	return &out
}
