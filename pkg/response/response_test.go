package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/unipass-integrity-api/pkg/errors"
)

func TestErrorEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{err: appErrors.ErrNotEligible, status: http.StatusUnprocessableEntity, code: "NOT_ELIGIBLE"},
		{err: appErrors.Wrap(errors.New("dial tcp"), appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "storage unavailable"), status: http.StatusServiceUnavailable, code: "PERSISTENCE_ERROR"},
		{err: errors.New("boom"), status: http.StatusInternalServerError, code: "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		Error(c, tc.err)

		var body Envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, tc.status, rec.Code)
		require.Equal(t, tc.code, body.Error.Code)
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	}
}

func TestAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	Accepted(c, map[string]string{"job_id": "j-1"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"data":{"job_id":"j-1"}}`, rec.Body.String())
}
