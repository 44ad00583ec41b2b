package session

import (
	"context"
	"errors"

	"github.com/normanking/tutorsense/internal/bandit"
	"github.com/normanking/tutorsense/internal/classifier"
	"github.com/normanking/tutorsense/internal/emotion"
	"github.com/normanking/tutorsense/internal/fusion"
)

// ErrAlreadyRunning is returned when Start is called on a running driver.
var ErrAlreadyRunning = errors.New("session already running")

// ErrNotRunning is returned when Stop is called on a stopped driver.
var ErrNotRunning = errors.New("session not running")

// Difficulty ladder bounds.
const (
	MinDifficulty = 1
	MaxDifficulty = 5
)

// Arm ids of the difficulty-delta policy, in tie-break order.
const (
	ArmEasier = "easier"
	ArmHold   = "hold"
	ArmHarder = "harder"
)

// FeatureDim is the length of the bandit context vector.
const FeatureDim = 6

// recentWindow bounds the rolling accuracy and affect windows.
const recentWindow = 5

// FaceClassifier scores a JPEG face crop. Satisfied by classifier.Client.
type FaceClassifier interface {
	ClassifyFace(ctx context.Context, jpeg []byte) (*classifier.FaceResult, error)
}

// VoiceClassifier scores a WAV chunk. Satisfied by classifier.Client.
type VoiceClassifier interface {
	ClassifyVoice(ctx context.Context, wav []byte) (*classifier.VoiceResult, error)
}

// FrameProvider supplies one face crop per inference cycle. An error means no
// usable frame this cycle (camera lost, no face detected).
type FrameProvider interface {
	Frame() ([]byte, error)
}

// StepResult is the outcome of one answer step: the reward credited to the
// previous decision and the difficulty adjustment chosen for the next one.
type StepResult struct {
	SessionID  string         `json:"session_id"`
	Step       uint64         `json:"step"`
	Reward     float64        `json:"reward"`
	Arm        string         `json:"arm"`
	Delta      int            `json:"delta"`
	Difficulty int            `json:"difficulty"`
	Fused      emotion.Vector `json:"fused"`
}

// State is a read-only snapshot of the driver for inspectors.
type State struct {
	SessionID        string               `json:"session_id"`
	Running          bool                 `json:"running"`
	Steps            uint64               `json:"steps"`
	Difficulty       int                  `json:"difficulty"`
	ConsecutiveWrong int                  `json:"consecutive_wrong"`
	RecentAccuracy   float64              `json:"recent_accuracy"`
	RecentPositive   float64              `json:"recent_positive"`
	Fusion           fusion.State         `json:"fusion"`
	Arms             []bandit.ArmSnapshot `json:"arms"`
}
