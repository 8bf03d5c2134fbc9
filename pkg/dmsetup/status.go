package dmsetup

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/drover/pkg/errdefs"
)

// Target types reported by dmsetup status.
const (
	TargetClone  = "clone"
	TargetLinear = "linear"
)

// Status is a parsed dmsetup status line.
type Status struct {
	Start      uint64
	Length     uint64
	TargetType string
	// Clone holds the clone-specific fields; nil for other target types.
	Clone *CloneStatus
	// Raw is the unparsed status line.
	Raw string
}

// CloneStatus holds the clone target fields:
//
//	<start> <length> clone <meta-dev-sectors> <hydrated>/<total>
//	<dirty-regions> <hydration-errors> <policy...> <rw|ro>
type CloneStatus struct {
	MetadataSectors uint64
	HydratedRegions uint64
	TotalRegions    uint64
	DirtyRegions    uint64
	HydrationErrors uint64
	// Policy carries the trailing hydration-policy tokens, e.g.
	// "hydration_threshold 1 hydration_batch_size 1".
	Policy []string
	Mode   string
}

// HydrationComplete reports whether background copy has finished:
// every region hydrated and not a single hydration error.
func (c *CloneStatus) HydrationComplete() bool {
	return c.HydratedRegions == c.TotalRegions && c.HydrationErrors == 0
}

// ParseStatus parses a single dmsetup status line. Clone fields are
// parsed strictly; a clone line that does not match the documented
// format is an error, never a guess.
func ParseStatus(line string) (*Status, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 3 {
		return nil, fmt.Errorf("status line %q too short: %w", line, errdefs.ErrOverlay)
	}

	start, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad start sector in %q: %w", line, errdefs.ErrOverlay)
	}
	length, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad length in %q: %w", line, errdefs.ErrOverlay)
	}

	status := &Status{
		Start:      start,
		Length:     length,
		TargetType: fields[2],
		Raw:        strings.TrimSpace(line),
	}

	if status.TargetType != TargetClone {
		return status, nil
	}

	clone, err := parseCloneFields(fields[3:])
	if err != nil {
		return nil, fmt.Errorf("clone status %q: %w", line, err)
	}
	status.Clone = clone
	return status, nil
}

func parseCloneFields(fields []string) (*CloneStatus, error) {
	// meta sectors, hydrated/total, dirty, errors, at least one policy
	// token, and the rw/ro flag
	if len(fields) < 5 {
		return nil, fmt.Errorf("too few fields: %w", errdefs.ErrOverlay)
	}

	meta, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad metadata sectors %q: %w", fields[0], errdefs.ErrOverlay)
	}

	hydrated, total, err := parseRatio(fields[1])
	if err != nil {
		return nil, err
	}

	dirty, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad dirty region count %q: %w", fields[2], errdefs.ErrOverlay)
	}
	errs, err := strconv.ParseUint(fields[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad hydration error count %q: %w", fields[3], errdefs.ErrOverlay)
	}

	mode := fields[len(fields)-1]
	if mode != "rw" && mode != "ro" {
		return nil, fmt.Errorf("bad mode %q: %w", mode, errdefs.ErrOverlay)
	}

	return &CloneStatus{
		MetadataSectors: meta,
		HydratedRegions: hydrated,
		TotalRegions:    total,
		DirtyRegions:    dirty,
		HydrationErrors: errs,
		Policy:          fields[4 : len(fields)-1],
		Mode:            mode,
	}, nil
}

func parseRatio(s string) (uint64, uint64, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad hydrated/total pair %q: %w", s, errdefs.ErrOverlay)
	}
	a, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad hydrated count %q: %w", s, errdefs.ErrOverlay)
	}
	b, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad total count %q: %w", s, errdefs.ErrOverlay)
	}
	return a, b, nil
}
