package types

import "time"

// Signal is one frame's worth of perception output.
// Valid is false when the classifier had nothing usable for the frame; the
// boolean fields are meaningless in that case.
type Signal struct {
	Valid       bool
	FacePresent bool
	EyesClosed  bool
	MouthOpen   bool
	At          time.Time
}

// NoSignal is the "nothing new this tick" sentinel.
var NoSignal = Signal{}
