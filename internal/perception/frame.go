package perception

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"drowsy-monitor/internal/types"
)

var ErrEmptyFrame = errors.New("empty perception frame")

// Frame is one message from the vision process. Producers fill whichever
// fields their detector supports; the classifier picks the most direct one.
type Frame struct {
	Timestamp  *time.Time `json:"ts,omitempty"`
	Face       *bool      `json:"face,omitempty"`
	Faces      *int       `json:"faces,omitempty"`
	EyesClosed *bool      `json:"eyes_closed,omitempty"`
	Eyes       *int       `json:"eyes,omitempty"`
	EAR        *float64   `json:"ear,omitempty"`
	LeftEye    []Point    `json:"left_eye,omitempty"`
	RightEye   []Point    `json:"right_eye,omitempty"`
	MouthOpen  bool       `json:"mouth_open,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
}

// DecodeFrame parses a JSON frame message.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if len(data) == 0 {
		return f, ErrEmptyFrame
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("failed to decode frame: %w", err)
	}
	return f, nil
}

// Classifier turns frames into signals.
type Classifier struct {
	EARThreshold  float64
	MinConfidence float64
}

// Signal classifies f. A frame below the confidence floor, or one that says
// nothing about the face, is not a valid signal.
func (c Classifier) Signal(f Frame, received time.Time) types.Signal {
	if f.Confidence != nil && *f.Confidence < c.MinConfidence {
		return types.NoSignal
	}

	var face bool
	switch {
	case f.Face != nil:
		face = *f.Face
	case f.Faces != nil:
		face = *f.Faces > 0
	default:
		return types.NoSignal
	}

	at := received
	if f.Timestamp != nil {
		at = *f.Timestamp
	}

	sig := types.Signal{Valid: true, FacePresent: face, At: at}
	if !face {
		return sig
	}
	sig.EyesClosed = c.eyesClosed(f)
	sig.MouthOpen = f.MouthOpen
	return sig
}

func (c Classifier) eyesClosed(f Frame) bool {
	if f.EyesClosed != nil {
		return *f.EyesClosed
	}
	if ear, ok := averageEAR(f.LeftEye, f.RightEye); ok {
		return ear < c.EARThreshold
	}
	if f.EAR != nil {
		return *f.EAR < c.EARThreshold
	}
	if f.Eyes != nil {
		// cascade detectors only report how many open eyes they found
		return *f.Eyes == 0
	}
	return false
}

func averageEAR(left, right []Point) (float64, bool) {
	var sum float64
	n := 0
	for _, eye := range [][]Point{left, right} {
		if ear, ok := EyeAspectRatio(eye); ok {
			sum += ear
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
