package entities

// PendingCorrection describes the action the controller is waiting on.
// It is the payload of a waiting_for_click event.
type PendingCorrection struct {
	Action   string `json:"action"`
	Selector string `json:"selector"`
}

// Correction is a replacement selector observed by the operator
type Correction struct {
	Selector string `json:"selector"`
}
