package ws

// ClientMsg é a única mensagem que o espectador manda: ping
type ClientMsg struct {
	Type string `json:"type"`
}
