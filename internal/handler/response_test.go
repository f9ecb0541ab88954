package handler

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/eidos-exchange/eidos-whalesync/pkg/errors"
)

func TestError_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", errors.Wrapf(errors.ErrNotFound, "alert 1"), http.StatusNotFound, "NOT_FOUND"},
		{"conflict", errors.ErrConflict, http.StatusConflict, "CONFLICT"},
		{"limit", errors.ErrLimitExceeded, http.StatusForbidden, "LIMIT_EXCEEDED"},
		{"invalid", errors.ErrInvalidArgument, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"plain error", stderrors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/x", func(c *gin.Context) { Error(c, tt.err) })

			w, resp := do(t, r, http.MethodGet, "/x", nil)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestError_HidesInternalDetail(t *testing.T) {
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { Error(c, stderrors.New("dial tcp 10.0.0.1:5432")) })

	_, resp := do(t, r, http.MethodGet, "/x", nil)
	assert.NotContains(t, resp.Message, "10.0.0.1")
}

func TestInt64Param_Rejects(t *testing.T) {
	r := gin.New()
	r.GET("/u/:userId", func(c *gin.Context) {
		if _, ok := int64Param(c, "userId"); ok {
			Success(c, nil)
		}
	})

	w, _ := do(t, r, http.MethodGet, "/u/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = do(t, r, http.MethodGet, "/u/0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = do(t, r, http.MethodGet, "/u/7", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
