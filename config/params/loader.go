package params

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// SessionFile is the on-disk representation of a session configuration.
// Sections left empty keep their defaults.
type SessionFile struct {
	Engine     *EngineConfig          `yaml:"engine"`
	Venue      *VenueGeometry         `yaml:"venue"`
	Parameters []*ParameterDefinition `yaml:"parameters"`
	Genre      string                 `yaml:"genre"`
}

// LoadSessionFile reads a YAML session configuration and applies it on top
// of the defaults. The resulting engine config replaces the process-wide
// config.
func LoadSessionFile(path string) (*SessionFile, error) {
	raw, err := ioutil.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, errors.Wrap(err, "could not read session config file")
	}
	f := &SessionFile{Engine: DefaultEngineConfig()}
	if err := yaml.Unmarshal(raw, f); err != nil {
		return nil, errors.Wrap(err, "could not unmarshal session config file")
	}
	for _, def := range f.Parameters {
		if !ValidParameterName(def.Name) {
			return nil, errors.Errorf("invalid parameter name %q", def.Name)
		}
	}
	if f.Genre != "" {
		if err := f.Engine.UseGenrePreset(f.Genre); err != nil {
			return nil, err
		}
	}
	if err := f.Engine.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid session config file")
	}
	OverrideEngineConfig(f.Engine)
	return f, nil
}
