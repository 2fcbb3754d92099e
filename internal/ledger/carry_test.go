package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func billed(id uint64, total string) Token {
	return Token{ID: id, Status: StatusUpdated, TotalAmount: d(total)}
}

var settleNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func assertSameTokens(t *testing.T, want, got []Token) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		w, g := want[i], got[i]
		assert.Equal(t, w.Status, g.Status, "token %d status", w.ID)
		assert.True(t, w.PaidAmount.Equal(g.PaidAmount), "token %d paid %s != %s", w.ID, w.PaidAmount, g.PaidAmount)
		assert.True(t, w.CarryForward.Equal(g.CarryForward), "token %d carry %s != %s", w.ID, w.CarryForward, g.CarryForward)
		assert.Equal(t, w.ConfirmedAt, g.ConfirmedAt, "token %d confirmed_at", w.ID)
	}
}

func TestSettlePartialPayment(t *testing.T) {
	res, err := Settle([]Token{billed(1, "1000"), billed(2, "500")}, d("1200"), settleNow)
	require.NoError(t, err)

	t1, t2 := res.Tokens[0], res.Tokens[1]
	assert.True(t, t1.PaidAmount.Equal(d("1000")))
	assert.Equal(t, StatusCompleted, t1.Status)
	require.NotNil(t, t1.ConfirmedAt)
	assert.True(t, t1.CarryForward.IsZero())

	assert.True(t, t2.PaidAmount.Equal(d("200")))
	assert.True(t, t2.CarryForward.Equal(d("-300")), "carry %s", t2.CarryForward)
	assert.Equal(t, StatusUpdated, t2.Status)
	assert.Nil(t, t2.ConfirmedAt)

	assert.True(t, res.Applied.Equal(d("1200")))
	assert.True(t, res.Leftover.IsZero())
}

func TestSettleOverpaymentParksLeftover(t *testing.T) {
	res, err := Settle([]Token{billed(1, "1000"), billed(2, "500")}, d("2000"), settleNow)
	require.NoError(t, err)

	for _, tok := range res.Tokens {
		assert.Equal(t, StatusCompleted, tok.Status)
		assert.True(t, tok.PaidAmount.Equal(tok.TotalAmount))
	}
	assert.True(t, res.Tokens[0].CarryForward.IsZero())
	assert.True(t, res.Tokens[1].CarryForward.Equal(d("500")))
	assert.True(t, res.Leftover.Equal(d("500")))
	assert.True(t, res.Tokens[1].Advance().Equal(d("500")))
}

func TestSettleDoesNotMutateInput(t *testing.T) {
	in := []Token{billed(1, "100")}
	_, err := Settle(in, d("100"), settleNow)
	require.NoError(t, err)
	assert.True(t, in[0].PaidAmount.IsZero())
	assert.Equal(t, StatusUpdated, in[0].Status)
}

func TestSettleRejectsNegativePayment(t *testing.T) {
	_, err := Settle([]Token{billed(1, "100")}, d("-1"), settleNow)
	require.ErrorIs(t, err, ErrValidation)
}

func TestSettleSkipsUnbilledTokens(t *testing.T) {
	pending := Token{ID: 2, Status: StatusPending}
	res, err := Settle([]Token{billed(1, "300"), pending, billed(3, "200")}, d("400"), settleNow)
	require.NoError(t, err)

	assert.True(t, res.Tokens[0].PaidAmount.Equal(d("300")))
	assert.Equal(t, StatusPending, res.Tokens[1].Status)
	assert.True(t, res.Tokens[1].PaidAmount.IsZero())
	assert.True(t, res.Tokens[2].PaidAmount.Equal(d("100")))
	assert.True(t, res.Tokens[2].CarryForward.Equal(d("-100")))
}

func TestSettleSeedsTrailingPendingToken(t *testing.T) {
	res, err := Settle([]Token{billed(1, "300"), {ID: 2, Status: StatusPending}}, d("500"), settleNow)
	require.NoError(t, err)

	last := res.Tokens[1]
	assert.Equal(t, StatusPending, last.Status)
	assert.True(t, last.PaidAmount.Equal(d("200")))
	assert.True(t, last.CarryForward.Equal(d("200")))
	assert.True(t, res.Leftover.Equal(d("200")))

	again, err := Settle(res.Tokens, decimal.Zero, settleNow.Add(time.Hour))
	require.NoError(t, err)
	assertSameTokens(t, res.Tokens, again.Tokens)
}

func TestSettleConservation(t *testing.T) {
	cases := []struct {
		name    string
		totals  []string
		payment string
	}{
		{name: "exact", totals: []string{"100", "200"}, payment: "300"},
		{name: "short", totals: []string{"100", "200", "50"}, payment: "120.50"},
		{name: "over", totals: []string{"100"}, payment: "999.99"},
		{name: "zero", totals: []string{"100", "200"}, payment: "0"},
		{name: "empty", totals: nil, payment: "10"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var tokens []Token
			for i, total := range tc.totals {
				tokens = append(tokens, billed(uint64(i+1), total))
			}
			res, err := Settle(tokens, d(tc.payment), settleNow)
			require.NoError(t, err)
			assert.True(t, res.Applied.Add(res.Leftover).Equal(res.Payment.Add(res.CreditUsed)),
				"applied %s + leftover %s != payment %s + credit %s", res.Applied, res.Leftover, res.Payment, res.CreditUsed)
			for _, tok := range res.Tokens {
				assert.False(t, tok.PaidAmount.GreaterThan(tok.TotalAmount), "token %d overpaid", tok.ID)
			}
		})
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	for _, payment := range []string{"0", "700", "1200", "1500", "2000"} {
		t.Run(payment, func(t *testing.T) {
			first, err := Settle([]Token{billed(1, "1000"), billed(2, "500")}, d(payment), settleNow)
			require.NoError(t, err)
			second, err := Settle(first.Tokens, decimal.Zero, settleNow.Add(24*time.Hour))
			require.NoError(t, err)
			assertSameTokens(t, first.Tokens, second.Tokens)
			assert.True(t, second.Applied.IsZero())
		})
	}
}

func TestSettleReusesParkedAdvance(t *testing.T) {
	first, err := Settle([]Token{billed(1, "1000")}, d("1500"), settleNow)
	require.NoError(t, err)
	require.True(t, first.Tokens[0].Advance().Equal(d("500")))

	tokens := append(first.Tokens, billed(2, "400"))
	second, err := Settle(tokens, decimal.Zero, settleNow)
	require.NoError(t, err)

	assert.True(t, second.CreditUsed.Equal(d("500")))
	assert.True(t, second.Tokens[1].PaidAmount.Equal(d("400")))
	assert.Equal(t, StatusCompleted, second.Tokens[1].Status)
	assert.True(t, second.Tokens[0].CarryForward.IsZero())
	assert.True(t, second.Tokens[1].CarryForward.Equal(d("100")))
}

func TestSettleKeepsConfirmationTimestamp(t *testing.T) {
	first, err := Settle([]Token{billed(1, "100")}, d("100"), settleNow)
	require.NoError(t, err)
	second, err := Settle(first.Tokens, d("0"), settleNow.Add(48*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, second.Tokens[0].ConfirmedAt)
	assert.True(t, second.Tokens[0].ConfirmedAt.Equal(settleNow))
}

func TestPickup(t *testing.T) {
	parked := Token{ID: 1, Status: StatusCompleted, TotalAmount: d("100"), PaidAmount: d("100"), CarryForward: d("40")}
	prev, seed := Pickup(parked)
	assert.True(t, seed.Equal(d("40")))
	assert.True(t, prev.CarryForward.IsZero())

	owed := Token{ID: 2, Status: StatusUpdated, TotalAmount: d("100"), PaidAmount: d("20"), CarryForward: d("-80")}
	prev, seed = Pickup(owed)
	assert.True(t, seed.IsZero())
	assert.True(t, prev.CarryForward.Equal(d("-80")))
}

func TestReprice(t *testing.T) {
	tok := Token{ID: 3, Status: StatusPending}
	got := Reprice(tok, d("10"), d("180"), d("50"), d("1850"), d("-300"))
	assert.Equal(t, StatusUpdated, got.Status)
	assert.True(t, got.TotalAmount.Equal(d("1850")))
	assert.True(t, got.CarryForward.Equal(d("-2150")))
}
