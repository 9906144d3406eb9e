package entities

// Server to client event names
const (
	EventStatus          = "status"
	EventWaitingForClick = "waiting_for_click"
	EventLocatorUpdated  = "locator_updated"
)

// Client to server event names
const (
	EventExecuteScript  = "execute_script"
	EventElementClicked = "element_clicked"
)

// StatusType classifies a status event
type StatusType string

const (
	StatusInfo    StatusType = "info"
	StatusSuccess StatusType = "success"
	StatusWarning StatusType = "warning"
	StatusError   StatusType = "error"
)

// Status is the payload of a status event
type Status struct {
	Message string     `json:"message"`
	Type    StatusType `json:"type"`
}

// LocatorUpdate is the payload of a locator_updated event
type LocatorUpdate struct {
	Name string `json:"name"`
	Old  string `json:"old"`
	New  string `json:"new"`
}

// Event is a single server to client message.
// Data holds one of Status, PendingCorrection or LocatorUpdate.
type Event struct {
	Name string      `json:"event"`
	Data interface{} `json:"data"`
}

// StatusEvent builds a status event
func StatusEvent(t StatusType, message string) Event {
	return Event{Name: EventStatus, Data: Status{Message: message, Type: t}}
}

// WaitingForClickEvent builds a waiting_for_click event
func WaitingForClickEvent(action, selector string) Event {
	return Event{Name: EventWaitingForClick, Data: PendingCorrection{Action: action, Selector: selector}}
}

// LocatorUpdatedEvent builds a locator_updated event
func LocatorUpdatedEvent(name, oldSelector, newSelector string) Event {
	return Event{Name: EventLocatorUpdated, Data: LocatorUpdate{Name: name, Old: oldSelector, New: newSelector}}
}
