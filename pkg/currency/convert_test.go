package currency_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootarou/xympay-sub000/pkg/currency"
)

func Test_MicroToXYM(t *testing.T) {
	t.Run("WholeUnits", func(t *testing.T) {
		assert.Equal(t, "5", currency.MicroToXYM(5_000_000).String())
	})

	t.Run("Fractional", func(t *testing.T) {
		assert.Equal(t, "1.234567", currency.MicroToXYM(1_234_567).String())
	})

	t.Run("SingleMicro", func(t *testing.T) {
		assert.Equal(t, "0.000001", currency.MicroToXYM(1).String())
	})

	t.Run("Zero", func(t *testing.T) {
		assert.True(t, currency.MicroToXYM(0).IsZero())
	})
}

func Test_FiatValue(t *testing.T) {
	t.Run("RoundsToCents", func(t *testing.T) {
		// 12.5 XYM at 0.0333 USD/XYM = 0.41625, rounded to 0.42.
		value, err := currency.FiatValue(12_500_000, "0.0333")
		require.NoError(t, err)
		assert.Equal(t, "0.42", value.StringFixed(2))
	})

	t.Run("ExactRate", func(t *testing.T) {
		value, err := currency.FiatValue(2_000_000, "1.50")
		require.NoError(t, err)
		assert.Equal(t, "3.00", value.StringFixed(2))
	})

	t.Run("InvalidRate", func(t *testing.T) {
		_, err := currency.FiatValue(1_000_000, "not-a-rate")
		assert.Error(t, err)
	})
}
