package session

// DetectionSettings toggles the detection features running on a student's
// client. Every feature is enabled unless a proctor or the student turns it off.
type DetectionSettings struct {
	FaceDetection           bool `json:"faceDetection"`
	GazeDetection           bool `json:"gazeDetection"`
	PhoneDetection          bool `json:"phoneDetection"`
	MouthDetection          bool `json:"mouthDetection"`
	MultiplePeopleDetection bool `json:"multiplePeopleDetection"`
	AudioDetection          bool `json:"audioDetection"`
	HandGestureDetection    bool `json:"handGestureDetection"`
	TabSwitchDetection      bool `json:"tabSwitchDetection"`
}

// DefaultSettings returns settings with every feature enabled.
func DefaultSettings() DetectionSettings {
	return DetectionSettings{
		FaceDetection:           true,
		GazeDetection:           true,
		PhoneDetection:          true,
		MouthDetection:          true,
		MultiplePeopleDetection: true,
		AudioDetection:          true,
		HandGestureDetection:    true,
		TabSwitchDetection:      true,
	}
}

// SettingsPatch is a partial update; nil fields keep their current value.
type SettingsPatch struct {
	FaceDetection           *bool `json:"faceDetection,omitempty"`
	GazeDetection           *bool `json:"gazeDetection,omitempty"`
	PhoneDetection          *bool `json:"phoneDetection,omitempty"`
	MouthDetection          *bool `json:"mouthDetection,omitempty"`
	MultiplePeopleDetection *bool `json:"multiplePeopleDetection,omitempty"`
	AudioDetection          *bool `json:"audioDetection,omitempty"`
	HandGestureDetection    *bool `json:"handGestureDetection,omitempty"`
	TabSwitchDetection      *bool `json:"tabSwitchDetection,omitempty"`
}

// Apply returns s with every non-nil field of p applied.
func (s DetectionSettings) Apply(p SettingsPatch) DetectionSettings {
	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&s.FaceDetection, p.FaceDetection)
	set(&s.GazeDetection, p.GazeDetection)
	set(&s.PhoneDetection, p.PhoneDetection)
	set(&s.MouthDetection, p.MouthDetection)
	set(&s.MultiplePeopleDetection, p.MultiplePeopleDetection)
	set(&s.AudioDetection, p.AudioDetection)
	set(&s.HandGestureDetection, p.HandGestureDetection)
	set(&s.TabSwitchDetection, p.TabSwitchDetection)
	return s
}

// Feature names used by the detection catalog to look up a toggle.
const (
	FeatureFace           = "faceDetection"
	FeatureGaze           = "gazeDetection"
	FeaturePhone          = "phoneDetection"
	FeatureMouth          = "mouthDetection"
	FeatureMultiplePeople = "multiplePeopleDetection"
	FeatureAudio          = "audioDetection"
	FeatureHandGesture    = "handGestureDetection"
	FeatureTabSwitch      = "tabSwitchDetection"
)

// Enabled reports whether the named feature is on. Unknown names are
// treated as enabled so uncatalogued signals are never silently dropped.
func (s DetectionSettings) Enabled(feature string) bool {
	switch feature {
	case FeatureFace:
		return s.FaceDetection
	case FeatureGaze:
		return s.GazeDetection
	case FeaturePhone:
		return s.PhoneDetection
	case FeatureMouth:
		return s.MouthDetection
	case FeatureMultiplePeople:
		return s.MultiplePeopleDetection
	case FeatureAudio:
		return s.AudioDetection
	case FeatureHandGesture:
		return s.HandGestureDetection
	case FeatureTabSwitch:
		return s.TabSwitchDetection
	default:
		return true
	}
}
