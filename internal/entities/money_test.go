package entities

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCentsFromUSD(t *testing.T) {
	require.Equal(t, Cents(1200), CentsFromUSD(12.00))
	require.Equal(t, Cents(201), CentsFromUSD(2.01))
	require.Equal(t, Cents(1878), CentsFromUSD(18.78))

	// Float artifacts round to the nearest cent.
	require.Equal(t, Cents(1999), CentsFromUSD(19.989999999))
	require.Equal(t, Cents(-150), CentsFromUSD(-1.50))
}

func TestCentsString(t *testing.T) {
	require.Equal(t, "$12.00", Cents(1200).String())
	require.Equal(t, "$0.05", Cents(5).String())
	require.Equal(t, "-$2.13", Cents(-213).String())
}

func TestCentsUSDRoundTrip(t *testing.T) {
	require.InDelta(t, 2.01, Cents(201).USD(), 1e-9)
}
