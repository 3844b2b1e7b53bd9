package proctoring

import (
	"fmt"
	"strings"

	"github.com/zaqqye/seb_proctoring/internal/session"
)

// DetectionType tags one kind of suspicious activity.
type DetectionType string

const (
	TabSwitching      DetectionType = "tab_switching"
	MultiplePeople    DetectionType = "multiple_people"
	NoFaceDetected    DetectionType = "no_face_detected"
	MultipleScreens   DetectionType = "multiple_screens"
	SpeakingDetected  DetectionType = "speaking_detected"
	LoudNoise         DetectionType = "loud_noise"
	LowAttention      DetectionType = "low_attention_score"
	GazeDeviation     DetectionType = "gaze_deviation"
	HeadPoseDeviation DetectionType = "head_pose_deviation"
	MouthMovement     DetectionType = "mouth_movement"
	MouseUsage        DetectionType = "mouse_usage"
	SuspiciousGesture DetectionType = "suspicious_gesture"
	AudioDetection    DetectionType = "audio_detection"
	PhoneUsage        DetectionType = "phone_usage"
	ManualFlag        DetectionType = "manual_flag"
)

type Tier string

const (
	TierMajor Tier = "major"
	TierMinor Tier = "minor"
)

func (t Tier) Valid() bool { return t == TierMajor || t == TierMinor }

// Severity is the label carried on alerts and history records.
type Severity string

const (
	SeverityMajor  Severity = "major"
	SeverityMinor  Severity = "minor"
	SeverityManual Severity = "manual"
)

// Source records who produced a violation.
type Source string

const (
	SourceAuto   Source = "auto"
	SourceClient Source = "client"
	SourceManual Source = "manual"
)

type catalogEntry struct {
	tier    Tier
	feature string
	message string
}

var catalog = map[DetectionType]catalogEntry{
	TabSwitching:      {TierMajor, session.FeatureTabSwitch, "Student switched away from the exam tab"},
	MultiplePeople:    {TierMajor, session.FeatureMultiplePeople, "Multiple people detected in frame"},
	NoFaceDetected:    {TierMajor, session.FeatureFace, "No face detected"},
	MultipleScreens:   {TierMajor, "", "Multiple screens detected"},
	SpeakingDetected:  {TierMajor, session.FeatureAudio, "Speaking detected"},
	LoudNoise:         {TierMajor, session.FeatureAudio, "Loud noise detected"},
	LowAttention:      {TierMajor, session.FeatureFace, "Sustained low attention"},
	GazeDeviation:     {TierMinor, session.FeatureGaze, "Gaze away from screen"},
	HeadPoseDeviation: {TierMinor, session.FeatureGaze, "Head turned away from screen"},
	MouthMovement:     {TierMinor, session.FeatureMouth, "Mouth movement detected"},
	MouseUsage:        {TierMinor, "", "Unexpected mouse activity"},
	SuspiciousGesture: {TierMinor, session.FeatureHandGesture, "Suspicious hand gesture"},
	AudioDetection:    {TierMinor, session.FeatureAudio, "Audio activity detected"},
}

// features for types that are recognised for toggling but carry no tier of
// their own; they classify like any uncatalogued type.
var extraFeatures = map[DetectionType]string{
	PhoneUsage: session.FeaturePhone,
}

// Classify maps a detection to its severity and cost. Confidence is accepted
// for the contract but never changes the outcome; thresholding happens in the
// detector. Unknown types are minor.
func Classify(t DetectionType, confidence *float64) (Severity, Tenths) {
	_ = confidence
	if e, ok := catalog[t]; ok && e.tier == TierMajor {
		return SeverityMajor, CostMajor
	}
	return SeverityMinor, CostMinor
}

// tierCost converts a tier into severity and cost.
func tierCost(t Tier) (Severity, Tenths) {
	if t == TierMajor {
		return SeverityMajor, CostMajor
	}
	return SeverityMinor, CostMinor
}

// BypassesCooldown reports whether t is a one-off event that must never be debounced.
func BypassesCooldown(t DetectionType) bool {
	return t == TabSwitching || t == ManualFlag
}

// FeatureFor returns the detection-settings toggle governing t, or "" when
// no toggle applies.
func FeatureFor(t DetectionType) string {
	if e, ok := catalog[t]; ok {
		return e.feature
	}
	return extraFeatures[t]
}

// DefaultMessage is the human-readable alert text for t.
func DefaultMessage(t DetectionType) string {
	if e, ok := catalog[t]; ok {
		return e.message
	}
	if t == ManualFlag {
		return "Flagged by proctor"
	}
	return fmt.Sprintf("Suspicious activity detected: %s", strings.ReplaceAll(string(t), "_", " "))
}

// Known reports whether t is part of the tiered catalog.
func Known(t DetectionType) bool {
	_, ok := catalog[t]
	return ok
}
