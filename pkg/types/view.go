package types

// ViewFrame is the JSON message exchanged with a connected remote view over
// the websocket transport. Inbound frames become queued events; outbound
// frames carry events emitted by the host back to the view.
type ViewFrame struct {
	// Event name, free-form, chosen by the embedding application.
	// example: select_object
	Event string `json:"event" example:"select_object"`
	// Positional payload values.
	Args []any `json:"args,omitempty"`
	// Named payload values.
	Fields map[string]any `json:"fields,omitempty"`
}
