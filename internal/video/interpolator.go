package video

import (
	"sort"

	"github.com/vidshield/redaction-processing-service/internal/domain/entity"
)

// Resolver answers "which regions apply to frame N" for any N. The policy
// is a nearest-keyframe hold: an exact table key returns its regions
// verbatim, anything else returns the regions of the closest key, ties
// going to the smaller key. There is no geometric blending; two adjacent
// keyframes produce a hard cut at their midpoint.
type Resolver struct {
	table entity.RegionTable
	keys  []int
}

// NewResolver builds a resolver over an immutable table snapshot.
func NewResolver(table entity.RegionTable) *Resolver {
	return &Resolver{table: table, keys: table.Keys()}
}

// Keys returns the keyframe ids in ascending order.
func (r *Resolver) Keys() []int {
	return r.keys
}

// Resolve is a pure function of (frameID, table): repeated calls against an
// unchanged table return identical region lists. An empty table resolves
// every frame to no regions.
func (r *Resolver) Resolve(frameID int) []entity.DetectionRegion {
	if len(r.keys) == 0 {
		return nil
	}
	if regions, ok := r.table[frameID]; ok {
		return regions
	}
	return r.table[r.nearestKey(frameID)]
}

func (r *Resolver) nearestKey(frameID int) int {
	// keys are sorted, so the nearest key borders the insertion point;
	// on equal distance the lower key wins.
	i := sort.SearchInts(r.keys, frameID)
	if i == 0 {
		return r.keys[0]
	}
	if i == len(r.keys) {
		return r.keys[len(r.keys)-1]
	}
	lo, hi := r.keys[i-1], r.keys[i]
	if frameID-lo <= hi-frameID {
		return lo
	}
	return hi
}
