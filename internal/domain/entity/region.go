package entity

import (
	"encoding/json"
	"fmt"
	"sort"
)

// BBox is a bounding box in source-video pixel space.
type BBox struct {
	X int
	Y int
	W int
	H int
}

// MarshalJSON encodes the box as the wire-format [x, y, w, h] array.
func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{b.X, b.Y, b.W, b.H})
}

func (b *BBox) UnmarshalJSON(data []byte) error {
	var arr []int
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("bbox must be an integer array: %w", err)
	}
	if len(arr) != 4 {
		return fmt.Errorf("bbox must have 4 elements, got %d", len(arr))
	}
	b.X, b.Y, b.W, b.H = arr[0], arr[1], arr[2], arr[3]
	return nil
}

// Area returns w*h.
func (b BBox) Area() int { return b.W * b.H }

// DetectionRegion locates a target object in one frame. Regions arrive from
// the external detector or the annotation UI and are untrusted until they
// pass NewDetectionRegion.
type DetectionRegion struct {
	FrameID     int     `json:"frame_id"`
	ObjectType  string  `json:"object_type"`
	BBox        BBox    `json:"bbox"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
	TrackID     *int    `json:"track_id"`
}

// NewDetectionRegion rejects out-of-range values at construction time.
// Coordinates may still exceed the frame; MosaicApplier clamps those, but
// non-positive dimensions and confidence outside [0,1] are always invalid.
func NewDetectionRegion(frameID int, objectType string, bbox BBox, confidence float64, description string, trackID *int) (DetectionRegion, error) {
	if frameID < 1 {
		return DetectionRegion{}, fmt.Errorf("detection region: frame_id must be >= 1, got %d", frameID)
	}
	if bbox.W <= 0 || bbox.H <= 0 {
		return DetectionRegion{}, fmt.Errorf("detection region frame %d: non-positive bbox size %dx%d", frameID, bbox.W, bbox.H)
	}
	if confidence < 0 || confidence > 1 {
		return DetectionRegion{}, fmt.Errorf("detection region frame %d: confidence %f outside [0,1]", frameID, confidence)
	}
	if objectType == "" {
		objectType = "unknown"
	}
	return DetectionRegion{
		FrameID:     frameID,
		ObjectType:  objectType,
		BBox:        bbox,
		Confidence:  confidence,
		Description: description,
		TrackID:     trackID,
	}, nil
}

// RegionTable maps a frame id to the ordered regions known for that frame.
// It is built once per run and queried once per output frame.
type RegionTable map[int][]DetectionRegion

// BuildRegionTable groups regions by frame id, preserving input order
// within each frame.
func BuildRegionTable(regions []DetectionRegion) RegionTable {
	table := make(RegionTable, len(regions))
	for _, r := range regions {
		table[r.FrameID] = append(table[r.FrameID], r)
	}
	return table
}

// Keys returns the table's frame ids in ascending order.
func (t RegionTable) Keys() []int {
	keys := make([]int, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Regions flattens the table back to a region list in key order.
func (t RegionTable) Regions() []DetectionRegion {
	var out []DetectionRegion
	for _, k := range t.Keys() {
		out = append(out, t[k]...)
	}
	return out
}

// regionDocument is the JSON interchange format shared with the external
// detector and the annotation UI.
type regionDocument struct {
	Regions []regionRecord `json:"regions"`
}

type regionRecord struct {
	FrameID     *int             `json:"frame_id"`
	ObjectType  string           `json:"object_type"`
	BBox        *json.RawMessage `json:"bbox"`
	Confidence  *float64         `json:"confidence"`
	Description string           `json:"description"`
	TrackID     *int             `json:"track_id"`
}

// ParseRegionDocument decodes the {"regions": [...]} interchange format.
// Entries missing frame_id or bbox reject the whole document; absent
// object_type defaults to "unknown" and absent confidence to 1.0, matching
// the annotation UI's output.
func ParseRegionDocument(data []byte) ([]DetectionRegion, error) {
	var doc regionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, NewProcessingError(ErrInvalidRegionData, "parse regions", "", err)
	}

	regions := make([]DetectionRegion, 0, len(doc.Regions))
	for i, rec := range doc.Regions {
		if rec.FrameID == nil {
			return nil, NewProcessingError(ErrInvalidRegionData, "parse regions", "",
				fmt.Errorf("entry %d: missing frame_id", i))
		}
		if rec.BBox == nil {
			return nil, NewProcessingError(ErrInvalidRegionData, "parse regions", "",
				fmt.Errorf("entry %d: missing bbox", i))
		}
		var bbox BBox
		if err := json.Unmarshal(*rec.BBox, &bbox); err != nil {
			return nil, NewProcessingError(ErrInvalidRegionData, "parse regions", "",
				fmt.Errorf("entry %d: %w", i, err))
		}
		confidence := 1.0
		if rec.Confidence != nil {
			confidence = *rec.Confidence
		}

		region, err := NewDetectionRegion(*rec.FrameID, rec.ObjectType, bbox, confidence, rec.Description, rec.TrackID)
		if err != nil {
			return nil, NewProcessingError(ErrInvalidRegionData, "parse regions", "",
				fmt.Errorf("entry %d: %w", i, err))
		}
		regions = append(regions, region)
	}
	return regions, nil
}

// MarshalRegionDocument serializes regions back to the interchange format.
func MarshalRegionDocument(regions []DetectionRegion) ([]byte, error) {
	out := struct {
		Regions []DetectionRegion `json:"regions"`
	}{Regions: regions}
	return json.Marshal(out)
}
