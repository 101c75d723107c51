package jit

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// IcacheConfig describes the host L1 instruction cache the IcacheModel
// tracks. It has no effect on execution; it only lets the driver report
// how many of a block's cache lines were already resident when
// installed, the same set/way accounting timing/cache.Cache uses for
// M2's data caches, applied here to diagnose code-cache pressure from
// hot retranslation instead of timing memory accesses.
type IcacheConfig struct {
	Size          int
	Associativity int
	BlockSize     int
}

// DefaultIcacheConfig mirrors the M2 L1 instruction cache parameters
// timing/cache.DefaultL1IConfig uses for its performance-core model.
func DefaultIcacheConfig() IcacheConfig {
	return IcacheConfig{Size: 192 * 1024, Associativity: 6, BlockSize: 64}
}

// IcacheStats tallies how many of a block's cache lines were resident
// (warm) versus newly brought in (cold) across every Record call.
type IcacheStats struct {
	LinesWarm uint64
	LinesCold uint64
}

// IcacheModel tracks which host addresses a warm L1 instruction cache
// would currently hold, without modeling latency: it exists purely to
// give the driver a -v diagnostic for code-cache churn as blocks are
// installed and retired.
type IcacheModel struct {
	blockSize int
	directory *akitacache.DirectoryImpl
	stats     IcacheStats
}

// NewIcacheModel creates a model with an empty cache.
func NewIcacheModel(cfg IcacheConfig) *IcacheModel {
	numSets := cfg.Size / (cfg.Associativity * cfg.BlockSize)
	return &IcacheModel{
		blockSize: cfg.BlockSize,
		directory: akitacache.NewDirectory(
			numSets,
			cfg.Associativity,
			cfg.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
	}
}

// Record walks the cache lines spanned by [addr, addr+size) and marks
// each one resident, counting how many were already there.
func (m *IcacheModel) Record(addr uintptr, size int) {
	if m == nil {
		return
	}
	blockSize := uint64(m.blockSize)
	start := uint64(addr) / blockSize * blockSize
	end := uint64(addr) + uint64(size)

	for line := start; line < end; line += blockSize {
		if block := m.directory.Lookup(0, line); block != nil && block.IsValid {
			m.stats.LinesWarm++
			m.directory.Visit(block)
			continue
		}
		m.stats.LinesCold++
		if victim := m.directory.FindVictim(line); victim != nil {
			victim.Tag = line
			victim.IsValid = true
			m.directory.Visit(victim)
		}
	}
}

// Stats returns the running totals since the model was created or last
// Reset.
func (m *IcacheModel) Stats() IcacheStats {
	if m == nil {
		return IcacheStats{}
	}
	return m.stats
}

// Reset invalidates every line and zeroes the statistics.
func (m *IcacheModel) Reset() {
	if m == nil {
		return
	}
	m.directory.Reset()
	m.stats = IcacheStats{}
}
