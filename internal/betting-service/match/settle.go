package match

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Settlement é o resultado congelado de uma rodada liquidada
type Settlement struct {
	Winner       string
	Pool         int64 // soma das apostas + aposta base
	WinningStake int64 // soma das apostas no vencedor
	Bets         []Bet
}

// Settle distribui o pool entre quem apostou no vencedor, proporcional ao
// valor apostado (pari-mutuel). O prêmio é arredondado para o inteiro mais
// próximo com empates indo para o par (round half to even).
// Cada aposta: devolve a reserva e aplica prêmio - aposta, com piso minPoints.
// Sem apostas no vencedor todos recebem 0 e não há divisão.
func (m *Match) Settle(winner string, baseBet, minPoints int64) (Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Settlement{}, ErrMatchClosed
	}

	st := Settlement{Winner: winner, Pool: baseBet}
	for _, b := range m.bets {
		st.Pool += b.Amount
		if b.Target == winner {
			st.WinningStake += b.Amount
		}
	}

	pool := decimal.NewFromInt(st.Pool)
	stake := decimal.NewFromInt(st.WinningStake)
	for _, b := range m.bets {
		b.settled = true
		if b.Target == winner {
			// aqui WinningStake > 0, pois ao menos esta aposta está no vencedor
			b.settledReturn = pool.Mul(decimal.NewFromInt(b.Amount)).Div(stake).RoundBank(0).IntPart()
		} else {
			b.settledReturn = 0
		}
	}

	var errs []error
	for _, b := range m.bets {
		if err := b.User.Ledger.Deallocate(b.Amount); err != nil {
			errs = append(errs, err)
			continue
		}
		b.User.Ledger.Give(b.settledReturn-b.Amount, minPoints)
	}

	st.Bets = m.snapshotLocked()
	m.bets = nil
	m.closed = true

	return st, errors.Join(errs...)
}

// TotalReturned soma os prêmios pagos
func (s Settlement) TotalReturned() int64 {
	var total int64
	for _, b := range s.Bets {
		total += b.settledReturn
	}
	return total
}
