package epoch

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pbnjay/memory"
)

// Config carries the tunables section 6 of the specification names.
// All fields have conservative defaults; the zero Config is not valid,
// always construct one through DefaultConfig or LoadConfig.
type Config struct {
	// NumLevels bounds the height a skip-list node may be drawn at.
	NumLevels int `toml:"num_levels"`
	// MaxSizes bounds how many distinct size classes may be registered
	// over the life of a Global.
	MaxSizes int `toml:"max_sizes"`
	// MaxHooks bounds how many retirement hooks may be registered.
	MaxHooks int `toml:"max_hooks"`
	// BlksPerChunk is how many opaque blocks a single chunk batches.
	BlksPerChunk int `toml:"blks_per_chunk"`
	// AllocChunksPerList is the initial refill size for a freshly
	// registered size class's shared chunk chain.
	AllocChunksPerList int `toml:"alloc_chunks_per_list"`
	// EntriesPerReclaimAttempt throttles how often a thread seeing a
	// stable epoch will itself attempt a reclaim pass.
	EntriesPerReclaimAttempt uint32 `toml:"entries_per_reclaim_attempt"`
	// WeakOrder selects the four-generation, poison-on-free variant of
	// the reclaim protocol (section 4.1) instead of the three-generation
	// one. Go's memory model does not need this to be correct on any
	// architecture the runtime supports, but it is offered for parity
	// with the specification and as a stress-testing aid: poisoning
	// catches a retained, dangling read that would otherwise only
	// manifest as silent corruption.
	WeakOrder bool `toml:"weak_order"`
	// Profile enables the allocation/byte counters mirroring the C
	// original's PROFILE_GC compile-time toggle.
	Profile bool `toml:"profile"`
	// YieldToHelpProgress yields the goroutine's processor after
	// ReclaimYieldThreshold consecutive reclaim attempts by a Handle
	// that did not see the epoch advance.
	YieldToHelpProgress  bool   `toml:"yield_to_help_progress"`
	ReclaimYieldThreshold uint32 `toml:"reclaim_yield_threshold"`
}

// NrEpochs returns the generation count the reclaim protocol cycles
// through: three on the default build, four under WeakOrder.
func (c Config) NrEpochs() int {
	if c.WeakOrder {
		return 4
	}
	return 3
}

// DefaultConfig returns the specification's tunables (section 6), with
// AllocChunksPerList scaled up on hosts with more memory to spare than
// the original C constant assumed, generalizing the fixed default the
// way a production port of a 2003-era C library reasonably would.
func DefaultConfig() Config {
	cfg := Config{
		NumLevels:                20,
		MaxSizes:                 60,
		MaxHooks:                 4,
		BlksPerChunk:             100,
		AllocChunksPerList:       10,
		EntriesPerReclaimAttempt: 100,
		WeakOrder:                false,
		Profile:                  false,
		YieldToHelpProgress:      false,
		ReclaimYieldThreshold:    10000,
	}

	if total := memory.TotalMemory(); total > 0 {
		const gib = 1 << 30
		switch {
		case total >= 64*gib:
			cfg.AllocChunksPerList = 40
		case total >= 16*gib:
			cfg.AllocChunksPerList = 20
		}
	}

	return cfg
}

// LoadConfig reads a Config from a TOML file, starting from
// DefaultConfig so a config file only needs to specify the fields it
// overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	if _, err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
