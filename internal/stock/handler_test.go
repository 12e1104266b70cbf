package stock

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondLedgerErrorMatchesWrappedSentinels(t *testing.T) {
	rec := httptest.NewRecorder()
	respondLedgerError(rec, fmt.Errorf("adjust product 7: %w", ErrProductNotFound))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	respondLedgerError(rec, fmt.Errorf("adjust product 7: %w", ErrZeroQuantity))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
