package params

import "github.com/pkg/errors"

// GenrePreset is one of the closed set of weighting coefficient triples
// tuned for a performance genre.
type GenrePreset struct {
	SpatialAlpha   float64
	TemporalBeta   float64
	ConsensusGamma float64
}

var genrePresets = map[string]GenrePreset{
	"electronic_music": {SpatialAlpha: 0.3, TemporalBeta: 0.5, ConsensusGamma: 0.2},
	"ballet":           {SpatialAlpha: 0.5, TemporalBeta: 0.2, ConsensusGamma: 0.3},
	"opera":            {SpatialAlpha: 0.2, TemporalBeta: 0.3, ConsensusGamma: 0.5},
	"installation":     {SpatialAlpha: 0.7, TemporalBeta: 0.1, ConsensusGamma: 0.2},
	"theatre":          {SpatialAlpha: 0.4, TemporalBeta: 0.3, ConsensusGamma: 0.3},
}

// UseGenrePreset applies the named preset's coefficient triple to the config.
// The preset set is closed; unknown names are an error.
func (c *EngineConfig) UseGenrePreset(name string) error {
	p, ok := genrePresets[name]
	if !ok {
		return errors.Errorf("unknown genre preset: %s", name)
	}
	c.Weighting.SpatialAlpha = p.SpatialAlpha
	c.Weighting.TemporalBeta = p.TemporalBeta
	c.Weighting.ConsensusGamma = p.ConsensusGamma
	return nil
}

// GenrePresetNames lists the recognized preset names.
func GenrePresetNames() []string {
	names := make([]string, 0, len(genrePresets))
	for name := range genrePresets {
		names = append(names, name)
	}
	return names
}
