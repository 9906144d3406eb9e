package entities

// Locator is a named, persisted selector decoupled from the script text
type Locator struct {
	Name     string `json:"name"`
	Selector string `json:"selector"`
}
