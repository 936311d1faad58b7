package derived

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edustatus/internal/apperr"
	"edustatus/internal/store"
)

func checkInvariants(t *testing.T, d StudentData) {
	t.Helper()
	f, a := d.Fees, d.Attendance

	assert.Equal(t, f.Tuition+f.Bus+f.Hostel+f.Miscellaneous, f.Total)
	assert.Equal(t, 140000, f.Total)
	assert.Equal(t, f.Total-f.Paid, f.Balance)
	assert.GreaterOrEqual(t, f.Paid, 0)
	assert.LessOrEqual(t, f.Paid, f.Total)

	assert.Equal(t, 120, a.TotalDays)
	assert.GreaterOrEqual(t, a.AbsentDays, 0)
	assert.Less(t, a.AbsentDays, 20)
	assert.Equal(t, a.TotalDays-a.AbsentDays, a.PresentDays)
	assert.Equal(t, int(math.Round(float64(a.PresentDays)/float64(a.TotalDays)*100)), a.Percentage)
	assert.Equal(t, a.AbsentDays*50, a.Fine)
}

func TestGetOrCreateInvariants(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, store.NewMemoryMedium())
	require.NoError(t, err)
	g := NewGenerator(st, nil)

	for i := 0; i < 200; i++ {
		d, err := g.GetOrCreate(ctx, fmt.Sprintf("user_%d", i))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("user_%d", i), d.UserID)
		checkInvariants(t, d)
	}
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemoryMedium()
	st, err := store.Open(ctx, m)
	require.NoError(t, err)
	g := NewGenerator(st, rand.New(rand.NewPCG(1, 2)))

	first, err := g.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	second, err := g.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// A restarted process sees the persisted record, not a fresh draw.
	require.NoError(t, st.Close(ctx))
	st2, err := store.Open(ctx, m)
	require.NoError(t, err)
	restarted := NewGenerator(st2, rand.New(rand.NewPCG(99, 100)))
	third, err := restarted.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestGetOrCreateConcurrentFirstAccess(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, store.NewMemoryMedium())
	require.NoError(t, err)
	g := NewGenerator(st, nil)

	results := make([]StudentData, 16)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := g.GetOrCreate(ctx, "u1")
			assert.NoError(t, err)
			results[i] = d
		}(i)
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
}

func TestGetOrCreateRequiresUser(t *testing.T) {
	st, err := store.Open(context.Background(), store.NewMemoryMedium())
	require.NoError(t, err)

	_, err = NewGenerator(st, nil).GetOrCreate(context.Background(), "")
	assert.ErrorIs(t, err, apperr.ErrNotAuthenticated)
}

func TestGetOrCreateAcrossStoresKeepsFirstRecord(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemoryMedium()
	st1, err := store.Open(ctx, m)
	require.NoError(t, err)
	st2, err := store.Open(ctx, m)
	require.NoError(t, err)

	first, err := NewGenerator(st1, rand.New(rand.NewPCG(1, 2))).GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	second, err := NewGenerator(st2, rand.New(rand.NewPCG(3, 4))).GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
