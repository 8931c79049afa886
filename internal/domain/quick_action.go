package domain

// QuickAction es un atajo tematico con respuesta informativa predefinida.
type QuickAction struct {
	Action string `json:"action"`
	Label  string `json:"label"`
}

// QuickActionReply es la respuesta de POST /quick-actions.
type QuickActionReply struct {
	Content string `json:"content"`
}
