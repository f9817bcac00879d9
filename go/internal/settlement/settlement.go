// Package settlement turns a drawn color and the round's bets into balance
// changes and the round summary.
package settlement

import (
	"time"

	"github.com/mcdev12/colorclash/go/internal/models"
	"github.com/shopspring/decimal"
)

// DefaultFeeRate is the share withheld from the losers' pool.
var DefaultFeeRate = decimal.NewFromFloat(0.05)

// payoutMultiplier is the gross return on a winning stake.
var payoutMultiplier = decimal.NewFromInt(2)

// Participant is one bet in the round.
type Participant struct {
	UserID      string
	Bet         models.Bet
	CurrentUser bool
}

// Input describes one round to settle.
type Input struct {
	RoundNumber  int
	WinningColor models.Color
	Participants []Participant
	FeeRate      decimal.Decimal
	At           time.Time
	// NewResultID names the current user's GameResult.
	NewResultID func() string
}

// Outcome is the settled round.
type Outcome struct {
	Summary models.RoundSummary
	// Result is nil when the current user had no bet.
	Result *models.GameResult
	// BalanceDelta is the current user's net balance change.
	BalanceDelta decimal.Decimal
}

// Settle computes pool totals, the platform fee and the current user's outcome.
// A winning stake is paid out at twice its size; since the stake itself is
// consumed by the round, the net balance change is +stake. A losing stake
// changes the balance by -stake.
func Settle(in Input) Outcome {
	totalStaked := decimal.Zero
	winnerStake := decimal.Zero
	loserPool := decimal.Zero

	for _, p := range in.Participants {
		totalStaked = totalStaked.Add(p.Bet.Stake)
		if p.Bet.Color == in.WinningColor {
			winnerStake = winnerStake.Add(p.Bet.Stake)
		} else {
			loserPool = loserPool.Add(p.Bet.Stake)
		}
	}

	rewardPool := loserPool.Mul(decimal.NewFromInt(1).Sub(in.FeeRate))
	totalDistributed := winnerStake.Add(rewardPool)

	out := Outcome{
		Summary: models.RoundSummary{
			RoundNumber:      in.RoundNumber,
			TotalStaked:      totalStaked,
			TotalDistributed: totalDistributed,
			ParticipantCount: len(in.Participants),
			WinningColor:     in.WinningColor,
			Timestamp:        in.At,
			PlatformFee:      totalStaked.Sub(totalDistributed),
		},
		BalanceDelta: decimal.Zero,
	}

	for _, p := range in.Participants {
		if !p.CurrentUser {
			continue
		}
		res := &models.GameResult{
			Color:       p.Bet.Color,
			Stake:       p.Bet.Stake,
			Timestamp:   in.At,
			RoundNumber: in.RoundNumber,
		}
		if in.NewResultID != nil {
			res.ID = in.NewResultID()
		}
		if p.Bet.Color == in.WinningColor {
			payout := p.Bet.Stake.Mul(payoutMultiplier)
			res.WinAmount = &payout
			out.BalanceDelta = payout.Sub(p.Bet.Stake)
		} else {
			out.BalanceDelta = p.Bet.Stake.Neg()
		}
		out.Result = res
		break
	}
	return out
}

// Skipped builds the zero summary recorded for a round nobody witnessed.
func Skipped(roundNumber int, winning models.Color, at time.Time) models.RoundSummary {
	return models.RoundSummary{
		RoundNumber:      roundNumber,
		TotalStaked:      decimal.Zero,
		TotalDistributed: decimal.Zero,
		ParticipantCount: 0,
		WinningColor:     winning,
		Timestamp:        at,
		PlatformFee:      decimal.Zero,
		Skipped:          true,
	}
}
