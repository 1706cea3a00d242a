package idx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewAndParse(t *testing.T) {
	id := idx.New()
	require.False(t, id.IsZero())

	parsed, err := idx.Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "not-a-ulid", "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3Z"} {
		_, err := idx.Parse(in)
		require.ErrorIs(t, err, idx.ErrInvalid, in)
	}
}

func TestIDsSortByTime(t *testing.T) {
	a := idx.NewAt(time.Unix(1, 0))
	b := idx.NewAt(time.Unix(2, 0))
	require.Less(t, a.String(), b.String())

	// Same millisecond still increases.
	tm := time.Unix(1700000000, 0)
	c := idx.NewAt(tm)
	d := idx.NewAt(tm)
	require.Less(t, c.String(), d.String())
}

func TestTimeExtraction(t *testing.T) {
	tm := time.Unix(1700000000, 0).UTC()
	require.WithinDuration(t, tm, idx.NewAt(tm).Time(), time.Millisecond)
	require.True(t, idx.ID("bogus").Time().IsZero())
}

func TestGeneratorOrderSurvivesOtherMints(t *testing.T) {
	gen := idx.NewGenerator()
	t0 := time.Unix(1700000000, 0)

	prev := gen.At(t0)
	for range 1000 {
		// Wall-clock mints elsewhere, e.g. request IDs.
		_ = idx.New()
		_ = idx.NewAt(t0.Add(time.Hour))

		next := gen.At(t0)
		require.Less(t, prev.String(), next.String())
		prev = next
	}
}
