package darkmix

type (
	// StageType is the kind of an effect stage.
	StageType string

	// StageConfig describes one stage of the effects chain: its type, the
	// initial parameter values and whether it starts bypassed. Parameters not
	// given use the stage defaults.
	StageConfig struct {
		Type       StageType
		Parameters map[string]float64 `yaml:",flow,omitempty"`
		Bypass     bool               `yaml:",omitempty"`
	}
)

const (
	StageFilter     StageType = "filter"
	StageDistortion StageType = "distortion"
	StageEQ         StageType = "eq"
	StageReverb     StageType = "reverb"
)

// StageOrder is the fixed processing order of the effects chain.
var StageOrder = []StageType{StageFilter, StageDistortion, StageEQ, StageReverb}

func (s *StageConfig) Copy() StageConfig {
	params := make(map[string]float64, len(s.Parameters))
	for k, v := range s.Parameters {
		params[k] = v
	}
	return StageConfig{Type: s.Type, Parameters: params, Bypass: s.Bypass}
}
