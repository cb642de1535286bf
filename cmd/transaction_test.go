package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntry(t *testing.T) {
	e, err := parseEntry("1010:DR:50.25", "INR")
	require.NoError(t, err)
	assert.Equal(t, entryFlag{Account: "1010", Debit: 5025}, e)

	e, err = parseEntry("4000:cr:7", "USD")
	require.NoError(t, err)
	assert.Equal(t, entryFlag{Account: "4000", Credit: 700}, e)

	e, err = parseEntry("2000:CREDIT:1000", "JPY")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), e.Credit)
}

func TestParseEntryRejects(t *testing.T) {
	for _, raw := range []string{
		"1010:DR",
		":DR:5",
		"1010:XX:5",
		"1010:DR:abc",
		"1010:DR:0",
		"1010:DR:-5",
		"1010:DR:1.005",
	} {
		_, err := parseEntry(raw, "INR")
		assert.Error(t, err, raw)
	}
}
