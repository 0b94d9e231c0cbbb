package services

import (
	"encoding/json"
	"testing"

	"github.com/aristath/frontier/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortfolioID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		body string
		want PortfolioID
	}{
		{`{"portfolio_id":"main"}`, "main"},
		{`{"portfolio_id":7}`, "7"},
		{`{"portfolio_id":"7"}`, "7"},
		{`{"portfolio_id":12.5}`, "12.5"},
		{`{"portfolio_id":null}`, ""},
		{`{}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			var req OptimizeRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			assert.Equal(t, tt.want, req.PortfolioID)
		})
	}
}

func TestPortfolioID_RejectsOtherTypes(t *testing.T) {
	for _, body := range []string{`{"portfolio_id":true}`, `{"portfolio_id":{"id":7}}`, `{"portfolio_id":[7]}`} {
		var req MonteCarloRequest
		err := json.Unmarshal([]byte(body), &req)
		assert.ErrorIs(t, err, domain.ErrInvalidRequest, body)
	}
}
