package params

import "math"

// Zone is a named region of the venue with a bounding box and a base
// spatial multiplier applied before distance attenuation.
type Zone struct {
	Name       string  `yaml:"name"`
	MinX       float64 `yaml:"minX"`
	MinY       float64 `yaml:"minY"`
	MaxX       float64 `yaml:"maxX"`
	MaxY       float64 `yaml:"maxY"`
	Multiplier float64 `yaml:"multiplier"`
}

// Contains reports whether the point lies within the zone's bounding box.
func (z *Zone) Contains(x, y float64) bool {
	return x >= z.MinX && x <= z.MaxX && y >= z.MinY && y <= z.MaxY
}

// VenueGeometry describes the physical space of a session. It is defined at
// session start and immutable for the session duration.
type VenueGeometry struct {
	Width       float64 `yaml:"width"`
	Height      float64 `yaml:"height"`
	StageX      float64 `yaml:"stageX"`
	StageY      float64 `yaml:"stageY"`
	MaxCapacity int     `yaml:"maxCapacity"`
	Zones       []Zone  `yaml:"zones"`
}

// DefaultVenue returns the venue geometry used when none is configured:
// a 20x30 meter hall with the stage centered on the near edge.
func DefaultVenue() *VenueGeometry {
	return &VenueGeometry{
		Width:       20,
		Height:      30,
		StageX:      10,
		StageY:      0,
		MaxCapacity: 1000,
		Zones: []Zone{
			{Name: "front", MinX: 0, MinY: 0, MaxX: 20, MaxY: 10, Multiplier: 1.2},
			{Name: "middle", MinX: 0, MinY: 10, MaxX: 20, MaxY: 20, Multiplier: 1.0},
			{Name: "back", MinX: 0, MinY: 20, MaxX: 20, MaxY: 30, Multiplier: 0.8},
		},
	}
}

// InBounds reports whether a point lies within the venue rectangle.
func (v *VenueGeometry) InBounds(x, y float64) bool {
	return x >= 0 && x <= v.Width && y >= 0 && y <= v.Height
}

// ZoneMultiplier returns the base spatial multiplier of the named zone, or
// of the first zone containing the point when no name is given. Points
// outside every zone use a neutral multiplier of 1.
func (v *VenueGeometry) ZoneMultiplier(name string, x, y float64) float64 {
	for i := range v.Zones {
		z := &v.Zones[i]
		if name != "" {
			if z.Name == name {
				return z.Multiplier
			}
			continue
		}
		if z.Contains(x, y) {
			return z.Multiplier
		}
	}
	return 1
}

// Diagonal returns the venue diagonal length used to normalize distances.
func (v *VenueGeometry) Diagonal() float64 {
	d := math.Hypot(v.Width, v.Height)
	if d == 0 {
		return 1
	}
	return d
}
