package negotiation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "$0.00", FormatCents(0))
	assert.Equal(t, "$6.50", FormatCents(650))
	assert.Equal(t, "$1000.05", FormatCents(100005))
	assert.Equal(t, "-$0.99", FormatCents(-99))
}

func TestPriceRangeErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("counter: %w", &PriceRangeError{Price: 5, Min: 100, Max: 1000})
	assert.True(t, errors.Is(err, ErrPriceOutOfRange))
	assert.False(t, errors.Is(err, ErrUnauthorizedParty))
	assert.EqualError(t, err, "counter: price must be between $1.00 and $10.00")
}
