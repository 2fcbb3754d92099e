package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Token is the billing view of a delivery token.
//
// CarryForward is negative while money is owed on the token and positive when
// the token holds an advance that has not been applied to any delivery yet.
type Token struct {
	ID           uint64
	Status       Status
	Weight       decimal.Decimal
	RatePerTon   decimal.Decimal
	Commission   decimal.Decimal
	TotalAmount  decimal.Decimal
	PaidAmount   decimal.Decimal
	CarryForward decimal.Decimal
	ConfirmedAt  *time.Time
}

// Billed reports whether the token has been weighed and priced.
func (t Token) Billed() bool { return t.TotalAmount.IsPositive() }

// Due returns the unpaid part of the total, never negative.
func (t Token) Due() decimal.Decimal {
	return clampZero(t.TotalAmount.Sub(t.PaidAmount))
}

// Advance returns the credit parked on the token by an earlier settlement.
// Only a completed, billed token can hold one; money seeded into an unbilled
// token is already part of its PaidAmount.
func (t Token) Advance() decimal.Decimal {
	if t.Status != StatusCompleted || !t.Billed() || !t.CarryForward.IsPositive() {
		return decimal.Zero
	}
	return t.CarryForward
}

// Settlement is the outcome of one carry engine pass.
type Settlement struct {
	Tokens     []Token
	Payment    decimal.Decimal
	Applied    decimal.Decimal
	Leftover   decimal.Decimal
	CreditUsed decimal.Decimal
}

// Settle applies payment across a customer's tokens, oldest first.
//
// Parked advances and overpayments are folded back into the pool before
// settling, so Applied + Leftover always equals Payment + CreditUsed and a
// rerun with a zero payment leaves the tokens unchanged. Leftover is parked
// on the last token. The input slice is not modified.
func Settle(tokens []Token, payment decimal.Decimal, now time.Time) (Settlement, error) {
	payment = RoundMoney(payment)
	if payment.IsNegative() {
		return Settlement{}, fmt.Errorf("%w: paid amount must not be negative", ErrValidation)
	}

	out := make([]Token, len(tokens))
	copy(out, tokens)

	credit := decimal.Zero
	for i := range out {
		credit = credit.Add(out[i].Advance())
		out[i].CarryForward = decimal.Zero
	}
	for i := range out {
		t := &out[i]
		if t.Billed() && t.PaidAmount.GreaterThan(t.TotalAmount) {
			credit = credit.Add(t.PaidAmount.Sub(t.TotalAmount))
			t.PaidAmount = t.TotalAmount
		}
	}

	pool := payment.Add(credit)
	applied := decimal.Zero
	for i := range out {
		t := &out[i]
		if !t.Billed() {
			if t.PaidAmount.IsPositive() {
				t.CarryForward = t.PaidAmount
			}
			continue
		}

		due := t.Due()
		switch {
		case due.IsZero():
			markCompleted(t, now)
		case pool.GreaterThanOrEqual(due):
			t.PaidAmount = t.TotalAmount
			markCompleted(t, now)
			pool = pool.Sub(due)
			applied = applied.Add(due)
		default:
			if pool.IsPositive() {
				t.PaidAmount = t.PaidAmount.Add(pool)
				applied = applied.Add(pool)
				pool = decimal.Zero
			}
			if t.PaidAmount.IsPositive() {
				t.CarryForward = t.PaidAmount.Sub(t.TotalAmount)
			}
			if t.PaidAmount.IsPositive() || t.Status == StatusCompleted {
				t.Status = StatusUpdated
				t.ConfirmedAt = nil
			}
		}
	}

	if pool.IsPositive() && len(out) > 0 {
		last := &out[len(out)-1]
		if last.Billed() {
			last.CarryForward = pool
			markCompleted(last, now)
		} else {
			// An unweighed token holds the advance and stays pending so it can still be billed.
			last.PaidAmount = last.PaidAmount.Add(pool)
			last.CarryForward = last.PaidAmount
		}
	}

	return Settlement{
		Tokens:     out,
		Payment:    payment,
		Applied:    applied,
		Leftover:   pool,
		CreditUsed: credit,
	}, nil
}

// Pickup moves the advance parked on prev into a newly created token. It
// returns the updated previous token and the amount seeded.
func Pickup(prev Token) (Token, decimal.Decimal) {
	adv := prev.Advance()
	if adv.IsZero() {
		return prev, decimal.Zero
	}
	prev.CarryForward = decimal.Zero
	return prev, adv
}

// Reprice records a new weighing on t. total must already be priced from
// weight, rate and commission; prevCarry is the carry of the token before t
// in the same history.
func Reprice(t Token, weight, rate, commission, total, prevCarry decimal.Decimal) Token {
	t.Weight = RoundTons(weight)
	t.RatePerTon = RoundMoney(rate)
	t.Commission = RoundMoney(commission)
	t.TotalAmount = RoundMoney(total)
	t.CarryForward = RoundMoney(prevCarry.Add(t.PaidAmount).Sub(t.TotalAmount))
	t.Status = StatusUpdated
	return t
}

func markCompleted(t *Token, now time.Time) {
	if t.Status == StatusCompleted && t.ConfirmedAt != nil {
		return
	}
	stamp := now
	t.Status = StatusCompleted
	t.ConfirmedAt = &stamp
}
