package reconciliation

import (
	"testing"
	"time"

	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/amirasaad/ledger/pkg/money"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newItem(amount string) Item {
	return Item{ID: uuid.New(), Amount: money.MustParse(amount), MatchStatus: MatchPending}
}

func TestNewRequiresName(t *testing.T) {
	t.Parallel()
	_, err := New("", "bank", "u1", time.Now())
	assert.ErrorIs(t, err, domain.ErrValidation)

	r, err := New("March", "bank", "u1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, r.Status)
}

func TestRecompute(t *testing.T) {
	t.Parallel()
	now := time.Now()
	r, err := New("March", "bank", "u1", now)
	require.NoError(t, err)

	items := []Item{newItem("150.00"), newItem("-20.50")}
	r.Recompute(items, now)
	assert.Equal(t, StatusOpen, r.Status)
	assert.Equal(t, 2, r.UnmatchedItems)
	assert.Equal(t, "170.50", money.Format(r.Discrepancy))

	require.NoError(t, items[0].AutoMatch(uuid.New(), Score{Total: 95}, "amount", now))
	r.Recompute(items, now)
	assert.Equal(t, StatusInProgress, r.Status)
	assert.Equal(t, 1, r.MatchedItems)
	assert.Equal(t, "20.50", money.Format(r.Discrepancy))

	require.NoError(t, items[1].ManualMatch(uuid.New(), "u1", now))
	r.Recompute(items, now)
	assert.Equal(t, StatusMatched, r.Status)
	assert.True(t, r.Discrepancy.IsZero())

	require.NoError(t, items[1].Unmatch("wrong line", "u1", now))
	r.Recompute(items, now)
	assert.Equal(t, StatusInProgress, r.Status)
}

func TestClose(t *testing.T) {
	t.Parallel()
	now := time.Now()
	r, err := New("March", "bank", "u1", now)
	require.NoError(t, err)
	items := []Item{newItem("1.00")}

	err = r.Close(items, "u1", false, now)
	assert.ErrorIs(t, err, domain.ErrOpenItemsRemain)

	require.NoError(t, r.Close(items, "u1", true, now))
	assert.Equal(t, StatusClosed, r.Status)
	assert.NotNil(t, r.ClosedAt)
	assert.ErrorIs(t, r.EnsureMutable(), domain.ErrReconciliationClosed)
	assert.ErrorIs(t, r.Close(items, "u1", true, now), domain.ErrReconciliationClosed)
}

func TestItemTransitions(t *testing.T) {
	t.Parallel()
	now := time.Now()
	tx1, tx2 := uuid.New(), uuid.New()

	it := newItem("10.00")
	require.NoError(t, it.ManualMatch(tx1, "ops", now))
	assert.Equal(t, MatchManualMatched, it.MatchStatus)
	assert.Nil(t, it.MatchConfidence)
	assert.NoError(t, it.ManualMatch(tx1, "ops", now))
	assert.ErrorIs(t, it.ManualMatch(tx2, "ops", now), domain.ErrAlreadyMatched)

	auto := newItem("10.00")
	score := Score{Amount: 50, Date: 30, Description: 10, Total: 90}
	require.NoError(t, auto.AutoMatch(tx2, score, "auto", now))
	require.NotNil(t, auto.MatchConfidence)
	require.NoError(t, auto.ManualMatch(tx2, "ops", now))
	assert.Equal(t, MatchManualMatched, auto.MatchStatus)
	assert.Equal(t, tx2, *auto.MatchedTransactionID)
	assert.Nil(t, auto.MatchConfidence)
	assert.Equal(t, "manual match by ops", auto.MatchReason)

	assert.ErrorIs(t, it.Unmatch("  ", "ops", now), domain.ErrValidation)
	require.NoError(t, it.Unmatch("duplicate", "ops", now))
	assert.Equal(t, MatchPending, it.MatchStatus)
	assert.Nil(t, it.MatchedTransactionID)
	assert.Equal(t, "duplicate", it.MatchReason)

	it.Suggest(tx2, Score{Amount: 50, Date: 20, Total: 70}, "amount", now)
	assert.Equal(t, MatchPending, it.MatchStatus)
	assert.Equal(t, tx2, *it.SuggestedTransactionID)
	assert.InDelta(t, 70.0, *it.MatchConfidence, 0.001)

	require.NoError(t, it.Dispute("customer claim", "ops", now))
	assert.Equal(t, MatchDisputed, it.MatchStatus)
	assert.ErrorIs(t, it.AutoMatch(tx1, Score{Total: 90}, "", now), domain.ErrAlreadyMatched)
}
