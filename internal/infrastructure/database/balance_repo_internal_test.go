package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBalance(t *testing.T) {
	tests := []struct {
		balance  string
		decimals int
		want     string
	}{
		{"0", 18, "0"},
		{"", 6, "0"},
		{"1500", 0, "1500"},
		{"1500000000000000000", 18, "1.5"},
		{"1000000", 6, "1"},
		{"5", 3, "0.005"},
		{"123456", 2, "1234.56"},
	}

	for _, tt := range tests {
		t.Run(tt.balance, func(t *testing.T) {
			assert.Equal(t, tt.want, formatBalance(tt.balance, tt.decimals))
		})
	}
}

func TestDialectHelpers(t *testing.T) {
	assert.Equal(t, " FOR UPDATE", DialectPostgres.forUpdate())
	assert.Equal(t, "", DialectSQLite.forUpdate())
	assert.Equal(t, "GREATEST", DialectPostgres.greatest())
	assert.Equal(t, "MAX", DialectSQLite.greatest())
}
