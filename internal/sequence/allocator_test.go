package sequence

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryCounter struct {
	values map[string]int64
	err    error
}

func (c *memoryCounter) IncrementSequence(ctx context.Context, prefix string, year, month int) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.values == nil {
		c.values = make(map[string]int64)
	}
	key := fmt.Sprintf("%s:%d:%d", prefix, year, month)
	c.values[key]++
	return c.values[key], nil
}

type memoryScan struct {
	numbers []string
	err     error
}

func (s *memoryScan) ExistingNumbers(ctx context.Context, prefix string, year, month int) ([]string, error) {
	return s.numbers, s.err
}

func TestFormatAndParse(t *testing.T) {
	date := time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC)
	number := Format(PrefixInvoice, date, 7)
	require.Equal(t, "INV-03/26/0007", number)

	c, err := Parse(number)
	require.NoError(t, err)
	require.Equal(t, PrefixInvoice, c.Prefix)
	require.Equal(t, 3, c.Month)
	require.Equal(t, 26, c.Year)
	require.EqualValues(t, 7, c.Seq)
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, number := range []string{"", "INV", "INV-03/26", "INV-13/26/0001", "INV-03/26/0000", "-03/26/0001"} {
		_, err := Parse(number)
		require.ErrorIs(t, err, ErrMalformedNumber, number)
	}
}

func TestNextIsMonotonicPerBucket(t *testing.T) {
	alloc := NewAllocator(&memoryCounter{}, nil, nil)
	ctx := context.Background()
	date := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)

	seen := make(map[string]bool)
	var last int64
	for i := 0; i < 25; i++ {
		number, err := alloc.Next(ctx, PrefixDeliveryNote, date)
		require.NoError(t, err)
		require.False(t, seen[number], "duplicate number %s", number)
		seen[number] = true

		c, err := Parse(number)
		require.NoError(t, err)
		require.Greater(t, c.Seq, last)
		last = c.Seq
	}
}

func TestNextBucketsAreIndependent(t *testing.T) {
	alloc := NewAllocator(&memoryCounter{}, nil, nil)
	ctx := context.Background()

	jan, err := alloc.Next(ctx, PrefixInvoice, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	feb, err := alloc.Next(ctx, PrefixInvoice, time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Equal(t, "INV-01/26/0001", jan)
	require.Equal(t, "INV-02/26/0001", feb)
}

func TestFallbackScansMaxPlusOne(t *testing.T) {
	scan := &memoryScan{numbers: []string{
		"EST-06/26/0002",
		"EST-06/26/0011",
		"EST-05/26/0099", // other bucket, ignored
		"garbage",        // unparsable, ignored
	}}
	alloc := NewAllocator(&memoryCounter{err: errors.New("counter down")}, scan, nil)

	number, err := alloc.Next(context.Background(), PrefixEstimate, time.Date(2026, time.June, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "EST-06/26/0012", number)
}

func TestCounterErrorSurfacesWithoutFallback(t *testing.T) {
	alloc := NewAllocator(&memoryCounter{err: errors.New("counter down")}, nil, nil)
	_, err := alloc.Next(context.Background(), PrefixInvoice, time.Now())
	require.Error(t, err)
}
