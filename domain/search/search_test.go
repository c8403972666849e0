package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSearchQuery(t *testing.T) {
	tests := []struct {
		input    string
		expected Query
	}{
		{"/find invoice", Query{Terms: "invoice", Limit: DefaultLimit}},
		{"/find late invoice --channel general --limit 5", Query{Terms: "late invoice", Channel: "general", Limit: 5}},
		{"/find --with bob lunch", Query{Terms: "lunch", Contact: "bob", Limit: DefaultLimit}},
		{"/find report --limit zero", Query{Terms: "report", Limit: DefaultLimit}},
		{"/find dangling --channel", Query{Terms: "dangling --channel", Limit: DefaultLimit}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			req := require.New(t)
			tt.expected.RawInput = tt.input

			req.Equal(tt.expected, *NewSearchQuery(tt.input))
		})
	}
}
