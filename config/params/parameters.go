package params

// ParameterDefinition describes one named scalar axis of the performance.
// Definitions are fixed at session start and immutable for the session
// duration. All values are normalized to [0,1].
type ParameterDefinition struct {
	Name                  string  `yaml:"name" json:"name"`
	Category              string  `yaml:"category" json:"category"`
	Default               float64 `yaml:"default" json:"default"`
	AudienceControllable  bool    `yaml:"audienceControllable" json:"audienceControllable"`
	PerformerControllable bool    `yaml:"performerControllable" json:"performerControllable"`
	SmoothingEnabled      bool    `yaml:"smoothingEnabled" json:"smoothingEnabled"`
	SinkAddress           string  `yaml:"sinkAddress" json:"sinkAddress"`
}

// DefaultParameters returns the parameter set of a session configured
// without an explicit schema.
func DefaultParameters() []*ParameterDefinition {
	return []*ParameterDefinition{
		{
			Name:                  "mood",
			Category:              "expression",
			Default:               0.5,
			AudienceControllable:  true,
			PerformerControllable: true,
			SmoothingEnabled:      true,
			SinkAddress:           "/performance/mood",
		},
		{
			Name:                  "tempo",
			Category:              "rhythm",
			Default:               0.5,
			AudienceControllable:  true,
			PerformerControllable: true,
			SmoothingEnabled:      true,
			SinkAddress:           "/performance/tempo",
		},
		{
			Name:                  "intensity",
			Category:              "dynamics",
			Default:               0.3,
			AudienceControllable:  true,
			PerformerControllable: true,
			SmoothingEnabled:      true,
			SinkAddress:           "/performance/intensity",
		},
		{
			Name:                  "density",
			Category:              "texture",
			Default:               0.4,
			AudienceControllable:  true,
			PerformerControllable: true,
			SmoothingEnabled:      true,
			SinkAddress:           "/performance/density",
		},
	}
}

// MaxParameterNameLength bounds parameter names on the wire.
const MaxParameterNameLength = 50

// ValidParameterName reports whether a name satisfies the wire contract:
// ASCII, length 1 to 50.
func ValidParameterName(name string) bool {
	if len(name) == 0 || len(name) > MaxParameterNameLength {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] > 127 {
			return false
		}
	}
	return true
}
