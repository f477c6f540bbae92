package users

import (
	"fmt"

	"github.com/radieske/live-betting-engine/internal/betting-service/ledger"
)

// User é o apostador. O Ledger é a única forma de alterar seus pontos.
type User struct {
	ID         string
	TwitchName string
	Ledger     *ledger.Ledger
}

// New cria um usuário com saldo inicial e nenhuma reserva
func New(id, twitchName string, points int64) *User {
	return &User{ID: id, TwitchName: twitchName, Ledger: ledger.New(points)}
}

func (u *User) String() string {
	return fmt.Sprintf("%s (%s)", u.TwitchName, u.ID)
}
