package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	app_errors "claude-relay/internal/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSuccess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data any
	}{
		{
			name: "with data",
			data: map[string]string{"key": "value"},
		},
		{
			name: "with nil data",
			data: nil,
		},
		{
			name: "with array data",
			data: []string{"item1", "item2"},
		},
		{
			name: "with string data",
			data: "success message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			Success(c, tt.data)

			assert.Equal(t, http.StatusOK, w.Code)

			var response SuccessResponse
			err := json.Unmarshal(w.Body.Bytes(), &response)
			require.NoError(t, err)

			assert.Equal(t, 0, response.Code)
			assert.NotEmpty(t, response.Message)
			if tt.data != nil {
				assert.NotNil(t, response.Data)
			}
		})
	}
}

func TestError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		apiErr         *app_errors.APIError
		expectedStatus int
	}{
		{
			name:           "bad request error",
			apiErr:         app_errors.ErrBadRequest,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unauthorized error",
			apiErr:         app_errors.ErrUnauthorized,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "not found error",
			apiErr:         app_errors.ErrNotFound,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "internal server error",
			apiErr:         app_errors.ErrInternalServer,
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "custom message",
			apiErr:         app_errors.NewAPIError(app_errors.ErrValidation, "missing field"),
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			Error(c, tt.apiErr)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response ErrorResponse
			err := json.Unmarshal(w.Body.Bytes(), &response)
			require.NoError(t, err)

			assert.Equal(t, tt.apiErr.Code, response.Code)
			assert.Equal(t, tt.apiErr.Message, response.Message)
		})
	}
}
