package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aquadoks/sales-backend/services"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"insufficient stock", services.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
		{"wrapped routing violation", fmt.Errorf("create: %w", services.ErrRoutingViolation), http.StatusUnprocessableEntity, "routing_violation"},
		{"upstream", services.ErrUpstreamUnavailable, http.StatusBadGateway, "upstream_unavailable"},
		{"signature", services.ErrInvalidSignature, http.StatusForbidden, "invalid_signature"},
		{"cancelled", context.Canceled, 499, "cancelled"},
		{"unexpected", errors.New("disk full"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondServiceError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body utils.JSONResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Status)
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestAuthController_IssueToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	issuer := utils.NewTokenIssuer("test-secret", time.Hour)
	ac := NewAuthController(issuer,
		ClientCredential{ClientID: "agent", SecretHash: string(hash), Role: utils.RoleAgent},
		ClientCredential{ClientID: "admin", Role: utils.RoleAdmin},
	)
	assert.Len(t, ac.Clients, 1, "clients without a secret are skipped")

	r := gin.New()
	r.POST("/token", ac.IssueToken)
	request := func(id, secret string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"client_id": id, "client_secret": secret})
		req := httptest.NewRequest(http.MethodPost, "/token", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := request("agent", "s3cret")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			Token string `json:"token"`
			Role  string `json:"role"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	claims, err := issuer.ParseToken(resp.Data.Token)
	require.NoError(t, err)
	assert.Equal(t, "agent", claims.ClientID)
	assert.Equal(t, utils.RoleAgent, claims.Role)

	assert.Equal(t, http.StatusUnauthorized, request("agent", "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, request("admin", "anything").Code)
	assert.Equal(t, http.StatusBadRequest, request("", "").Code)
}
