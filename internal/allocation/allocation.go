// Package allocation computes each participant's share of a total expense by
// blending an income-weighted split with an equal split.
package allocation

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/nkhella/fairshare/internal/models"
)

// Share is one participant's computed portion of the expense.
type Share struct {
	// Profile is the participant this share belongs to.
	Profile models.Profile

	// Amount is this participant's dollar share of the total.
	Amount float64

	// Percentage is Amount as a percentage of the total expense.
	// Zero when the total expense is zero (the ratio is undefined there).
	Percentage float64
}

// AmountCents returns the share amount rounded half-up to cents, suitable for
// display and payment links.
func (s Share) AmountCents() decimal.Decimal {
	return decimal.NewFromFloat(s.Amount).Round(2)
}

// ComputeShares allocates totalExpense across the participants.
//
// The blend ratio controls the split: 0 is purely income-proportional, 1 is a
// plain equal split, values between interpolate linearly. A participant with
// no recorded income weighs zero in the income-proportional component.
//
// When every participant's income is zero the income-proportional component is
// zero for all of them, so at ratio 0 all shares degrade to zero rather than
// falling back to an equal split. That matches the behavior users see today;
// changing it is a product decision, not a bug fix.
func ComputeShares(totalExpense float64, participants []models.Profile, ratio float64) ([]Share, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("must have at least one participant")
	}
	if err := checkAmount("total expense", totalExpense); err != nil {
		return nil, err
	}
	if math.IsNaN(ratio) || ratio < 0 || ratio > 1 {
		return nil, fmt.Errorf("ratio must be within [0, 1], got %v", ratio)
	}

	totalIncome := 0.0
	for i := range participants {
		income := participants[i].Income()
		if err := checkAmount("income", income); err != nil {
			return nil, err
		}
		totalIncome += income
	}

	equalShare := totalExpense / float64(len(participants))

	shares := make([]Share, 0, len(participants))
	for i := range participants {
		incomeShare := 0.0
		if totalIncome > 0 {
			incomeShare = totalExpense * participants[i].Income() / totalIncome
		}

		amount := (1-ratio)*incomeShare + ratio*equalShare

		pct := 0.0
		if totalExpense > 0 {
			pct = amount / totalExpense * 100
		}

		shares = append(shares, Share{
			Profile:    participants[i],
			Amount:     amount,
			Percentage: pct,
		})
	}

	return shares, nil
}

// checkAmount rejects the malformed numeric inputs that would otherwise
// silently poison every downstream share.
func checkAmount(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be a finite number, got %v", field, v)
	}
	if v < 0 {
		return fmt.Errorf("%s cannot be negative, got %v", field, v)
	}
	return nil
}
