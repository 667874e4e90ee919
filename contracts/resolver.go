package contracts

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// OpenEnded is the end block of the latest version
const OpenEnded = math.MaxUint64

var (
	// ErrUnknownVersion is returned when no version covers a block. It means
	// the version table is misconfigured and is never retried.
	ErrUnknownVersion = errors.New("no contract version for block")

	// ErrInvalidVersionTable is returned for overlapping or unsupported entries
	ErrInvalidVersionTable = errors.New("invalid contract version table")
)

// VersionRange is one row of the configured version table. EndBlock 0 marks
// the open-ended latest version.
type VersionRange struct {
	Number     uint16 `yaml:"number"`
	StartBlock uint64 `yaml:"start_block"`
	EndBlock   uint64 `yaml:"end_block"`
}

// Version is the ABI descriptor active over a block range
type Version struct {
	Number     uint16
	StartBlock uint64
	EndBlock   uint64

	// ResultSlots is the fixed width of the eventMetadata results array
	ResultSlots int

	// WinningsByCaller is set when calculateWinnings takes no argument and
	// reads msg.sender instead.
	WinningsByCaller bool

	EventABI   *abi.ABI
	FactoryABI *abi.ABI
}

// IsOpenEnded reports whether v is the latest version
func (v *Version) IsOpenEnded() bool {
	return v.EndBlock == OpenEnded
}

// Contains reports whether block falls inside the version's range
func (v *Version) Contains(block uint64) bool {
	return block >= v.StartBlock && block <= v.EndBlock
}

type versionShape struct {
	resultSlots int
	byCaller    bool
}

var knownShapes = map[uint16]versionShape{
	0: {resultSlots: 11, byCaller: true},
	1: {resultSlots: 11},
	2: {resultSlots: 11},
	3: {resultSlots: 4},
}

// Resolver maps block numbers to contract versions
type Resolver struct {
	versions []*Version
}

// NewResolver builds a resolver from the configured table. Ranges must not
// overlap and only the last one may be open-ended.
func NewResolver(ranges []VersionRange) (*Resolver, error) {
	if len(ranges) == 0 {
		return nil, fmt.Errorf("%w: no versions configured", ErrInvalidVersionTable)
	}

	sorted := make([]VersionRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartBlock < sorted[j].StartBlock })

	factory, err := Parse(FactoryABI)
	if err != nil {
		return nil, err
	}

	versions := make([]*Version, 0, len(sorted))
	for i, r := range sorted {
		shape, ok := knownShapes[r.Number]
		if !ok {
			return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidVersionTable, r.Number)
		}

		end := r.EndBlock
		if end == 0 {
			if i != len(sorted)-1 {
				return nil, fmt.Errorf("%w: version %d is open-ended but not the latest", ErrInvalidVersionTable, r.Number)
			}
			end = OpenEnded
		}
		if end < r.StartBlock {
			return nil, fmt.Errorf("%w: version %d ends before it starts", ErrInvalidVersionTable, r.Number)
		}
		if i > 0 && r.StartBlock <= versions[i-1].EndBlock {
			return nil, fmt.Errorf("%w: version %d overlaps version %d", ErrInvalidVersionTable, r.Number, versions[i-1].Number)
		}

		eventABI, err := Parse(EventABIJSON(shape.resultSlots, shape.byCaller))
		if err != nil {
			return nil, fmt.Errorf("version %d: %w", r.Number, err)
		}

		versions = append(versions, &Version{
			Number:           r.Number,
			StartBlock:       r.StartBlock,
			EndBlock:         end,
			ResultSlots:      shape.resultSlots,
			WinningsByCaller: shape.byCaller,
			EventABI:         eventABI,
			FactoryABI:       factory,
		})
	}

	return &Resolver{versions: versions}, nil
}

// Resolve returns the version active at block
func (r *Resolver) Resolve(block uint64) (*Version, error) {
	idx := sort.Search(len(r.versions), func(i int) bool {
		return r.versions[i].EndBlock >= block
	})
	if idx < len(r.versions) && r.versions[idx].Contains(block) {
		return r.versions[idx], nil
	}
	return nil, fmt.Errorf("%w %d", ErrUnknownVersion, block)
}

// ByNumber returns the descriptor for a version number
func (r *Resolver) ByNumber(number uint16) (*Version, error) {
	for _, v := range r.versions {
		if v.Number == number {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: version %d not configured", ErrUnknownVersion, number)
}

// Latest returns the newest configured version
func (r *Resolver) Latest() *Version {
	return r.versions[len(r.versions)-1]
}

// ClampRange shortens [start,end] so it is decoded with a single ABI shape.
func (r *Resolver) ClampRange(start, end uint64) (uint64, error) {
	if end < start {
		return 0, fmt.Errorf("invalid range [%d,%d]", start, end)
	}
	startVersion, err := r.Resolve(start)
	if err != nil {
		return 0, err
	}
	endVersion, err := r.Resolve(end)
	if err != nil {
		// The tail of the range may run past a closed table; the start
		// version's end still bounds it.
		if errors.Is(err, ErrUnknownVersion) && !startVersion.IsOpenEnded() {
			return startVersion.EndBlock, nil
		}
		return 0, err
	}
	if endVersion != startVersion {
		return startVersion.EndBlock, nil
	}
	return end, nil
}
