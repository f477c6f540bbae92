package events

import "time"

// Tipos de evento publicados no tópico "judging_events"
const (
	JudgingStarted = "started"
	JudgingEnded   = "ended"
)

// JudgingEvent é emitido pela origem de julgamento.
// Em "started" TeamIDs define os alvos da rodada; em "ended" os placares
// decidem o vencedor (empate cancela a rodada).
type JudgingEvent struct {
	Type    string    `json:"type"` // "started" | "ended"
	EventID string    `json:"event_id"`
	TeamIDs []string  `json:"team_ids,omitempty"`
	Team1   string    `json:"team1,omitempty"`
	Team2   string    `json:"team2,omitempty"`
	Score1  int       `json:"score1"`
	Score2  int       `json:"score2"`
	Ts      time.Time `json:"ts"`
}
