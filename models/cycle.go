package models

import "time"

// Cycle is the global singleton describing the live submission window.
// RevealTime is the instant submissions for Number become on time;
// PreviousRevealTime is kept so submissions still arriving for the
// prior window can be judged against the right instant.
type Cycle struct {
	Number             int64     `json:"number"`
	RevealTime         time.Time `json:"revealTime"`
	PreviousRevealTime time.Time `json:"previousRevealTime"`
	UpdatedAt          time.Time `json:"-"`
}
