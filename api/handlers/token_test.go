package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/tripflow/auth"
)

func newTokenFixture(t *testing.T) (*auth.Verifier, *TokenHandler) {
	t.Helper()
	v, err := auth.NewVerifier(&auth.Config{Secret: "test-secret", Issuer: "tripflow"}, zap.NewNop())
	require.NoError(t, err)
	return v, NewTokenHandler(v, zap.NewNop())
}

func TestHandleIssue(t *testing.T) {
	v, h := newTokenFixture(t)

	rec := httptest.NewRecorder()
	h.HandleIssue(rec, httptest.NewRequest("POST", "/v1/auth/token",
		strings.NewReader(`{"user_id":"u1","conversation_id":"c1"}`)))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]any)
	token := data["token"].(string)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "c1", claims.ConversationID)
}

func TestHandleIssueRequiresUserID(t *testing.T) {
	_, h := newTokenFixture(t)

	rec := httptest.NewRecorder()
	h.HandleIssue(rec, httptest.NewRequest("POST", "/v1/auth/token", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleIssueMalformedBody(t *testing.T) {
	_, h := newTokenFixture(t)

	rec := httptest.NewRecorder()
	h.HandleIssue(rec, httptest.NewRequest("POST", "/v1/auth/token", strings.NewReader(`{broken`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
