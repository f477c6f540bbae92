package rounds

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/radieske/live-betting-engine/pkg/contracts/events"
)

// Catálogo fixo de confrontos simulados
var Catalog = [][2]string{
	{"red", "blue"},
	{"sumo-1", "sumo-2"},
	{"alpha", "omega"},
	{"north", "south"},
}

// Generator monta pares started/ended com placar aleatório
type Generator struct {
	rng  *rand.Rand
	next int
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Next devolve a abertura e o encerramento da próxima rodada.
// Placar de 0 a 3 para cada lado, então empates acontecem.
func (g *Generator) Next(now time.Time) (started, ended events.JudgingEvent) {
	pair := Catalog[g.next%len(Catalog)]
	g.next++

	id := fmt.Sprintf("SIM_%04d", g.next)
	started = events.JudgingEvent{
		Type:    events.JudgingStarted,
		EventID: id,
		TeamIDs: []string{pair[0], pair[1]},
		Team1:   pair[0],
		Team2:   pair[1],
		Ts:      now.UTC(),
	}
	ended = started
	ended.Type = events.JudgingEnded
	ended.TeamIDs = nil
	ended.Score1 = g.rng.Intn(4)
	ended.Score2 = g.rng.Intn(4)
	return started, ended
}
