package events

import "time"

// Nomes das notificações publicadas no tópico "betting_notifications"
const (
	KindStart           = "start"
	KindCountdownStart  = "countdown_start"
	KindCountdownCancel = "countdown_cancel"
	KindBet             = "bet"
	KindCountdownEnd    = "countdown_end"
	KindCancel          = "cancel"
	KindEnd             = "end"
)

// BettingNotification é o envelope de todas as notificações do motor de apostas.
// Os campos opcionais só aparecem nas notificações que os carregam.
type BettingNotification struct {
	Kind    string    `json:"kind"`
	MatchID string    `json:"match_id"`
	EventID string    `json:"event_id"`
	Targets []string  `json:"targets,omitempty"`
	UserID  string    `json:"user_id,omitempty"`
	Target  string    `json:"target,omitempty"`
	Amount  int64     `json:"amount,omitempty"`
	Winner  string    `json:"winner,omitempty"`
	Bets    []BetView `json:"bets,omitempty"` // apenas em "end"
	Ts      time.Time `json:"ts"`
}

// BetView é uma aposta liquidada como vista pelos espectadores
type BetView struct {
	UserID        string `json:"user_id"`
	TwitchName    string `json:"twitch_name,omitempty"`
	Target        string `json:"target"`
	Amount        int64  `json:"amount"`
	SettledReturn int64  `json:"settled_return"`
}
