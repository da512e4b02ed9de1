package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

func TestAnnotationsValueScanRoundTrip(t *testing.T) {
	in := TransactionAnnotations{
		CurrencyMismatch: &CurrencyMismatch{
			ExpectedCurrency: enums.CurrencyINR,
			ReportedCurrency: enums.CurrencyUSD,
			ReportedAmount:   decimal.RequireFromString("9.99"),
		},
		Extra: map[string]string{"gateway_notes": "stale plan mapping"},
	}

	raw, err := in.Value()
	require.NoError(t, err)

	var out TransactionAnnotations
	require.NoError(t, out.Scan(raw))

	require.NotNil(t, out.CurrencyMismatch)
	assert.Equal(t, enums.CurrencyINR, out.CurrencyMismatch.ExpectedCurrency)
	assert.True(t, out.CurrencyMismatch.ReportedAmount.Equal(decimal.RequireFromString("9.99")))
	assert.Equal(t, "stale plan mapping", out.Extra["gateway_notes"])
}

func TestAnnotationsEmptyValueIsNull(t *testing.T) {
	var a TransactionAnnotations
	raw, err := a.Value()
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestAnnotationsScanNil(t *testing.T) {
	a := TransactionAnnotations{Extra: map[string]string{"k": "v"}}
	require.NoError(t, a.Scan(nil))
	assert.True(t, a.IsZero())
}
