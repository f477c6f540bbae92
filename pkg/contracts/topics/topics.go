package topics

const (
	// Judging (entrada: início/fim de partida julgada)
	JudgingEvents = "judging_events"

	// Betting (saída: notificações do motor de apostas)
	BettingNotifications = "betting_notifications"

	// Canal Redis Pub/Sub usado pelo spectator-relay
	BettingBroadcast = "betting_broadcast"
)
