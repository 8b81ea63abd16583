package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/tripflow/types"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(&Config{Secret: "test-secret", Issuer: "tripflow", TokenTTL: time.Hour}, zap.NewNop())
	require.NoError(t, err)
	return v
}

func TestVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier(&Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestIssueAndVerify(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.Issue("user-42", "conv-7")
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.Subject)
	assert.Equal(t, "conv-7", claims.ConversationID)
}

func TestVerifyAssignsConversationID(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.Issue("user-42", "")
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ConversationID)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := newTestVerifier(t)

	other, err := NewVerifier(&Config{Secret: "other-secret", Issuer: "tripflow"}, zap.NewNop())
	require.NoError(t, err)
	token, err := other.Issue("user-42", "")
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.Error(t, err)
	assert.Equal(t, types.ErrUnauthorized, types.GetErrorCode(err))
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	v := newTestVerifier(t)

	other, err := NewVerifier(&Config{Secret: "test-secret", Issuer: "someone-else"}, zap.NewNop())
	require.NoError(t, err)
	token, err := other.Issue("user-42", "")
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := newTestVerifier(t)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			Issuer:    "tripflow",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.Error(t, err)
}

func TestFromRequestBearerHeader(t *testing.T) {
	v := newTestVerifier(t)
	token, err := v.Issue("user-42", "conv-1")
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	claims, err := v.FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.Subject)
}

func TestFromRequestQueryParam(t *testing.T) {
	v := newTestVerifier(t)
	token, err := v.Issue("user-42", "conv-1")
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/ws?token="+token, nil)

	claims, err := v.FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.Subject)
}

func TestFromRequestMissingToken(t *testing.T) {
	v := newTestVerifier(t)

	r := httptest.NewRequest("GET", "/ws", nil)
	_, err := v.FromRequest(r)
	require.Error(t, err)
	assert.Equal(t, types.ErrUnauthorized, types.GetErrorCode(err))
}
