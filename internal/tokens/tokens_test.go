package tokens

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return New(Config{
		Secret:        "a-test-signing-secret-that-is-long-enough",
		AdminUsername: "admin",
		AdminPassword: "correct-horse-battery-staple",
	})
}

func TestIssueAndVerifyStreamToken(t *testing.T) {
	svc := newTestService()

	token, err := svc.IssueStreamToken(StreamClaims{ID: "abc123", MediaType: MediaMovie, QualityIndex: 2}, 0)
	require.NoError(t, err)

	claims, err := svc.VerifyStreamToken(token, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", claims.ID)
	assert.Equal(t, MediaMovie, claims.MediaType)
	assert.Equal(t, 2, claims.QualityIndex)
}

func TestVerifyStreamTokenRejectsMismatchedID(t *testing.T) {
	svc := newTestService()

	token, err := svc.IssueStreamToken(StreamClaims{ID: "abc123", MediaType: MediaMovie}, 0)
	require.NoError(t, err)

	_, err = svc.VerifyStreamToken(token, "different-id")
	assert.Error(t, err)
}

func TestVerifyStreamTokenRejectsExpired(t *testing.T) {
	svc := newTestService()

	token, err := svc.IssueStreamToken(StreamClaims{ID: "abc123", MediaType: MediaMovie}, -time.Second)
	require.NoError(t, err)

	_, err = svc.VerifyStreamToken(token, "abc123")
	assert.Error(t, err)
}

func TestVerifyStreamTokenRejectsTampering(t *testing.T) {
	svc := newTestService()

	token, err := svc.IssueStreamToken(StreamClaims{ID: "abc123", MediaType: MediaMovie}, 0)
	require.NoError(t, err)

	tampered := token[:len(token)-1] + "x"
	_, err = svc.VerifyStreamToken(tampered, "abc123")
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService()

	_, err := svc.Authenticate("admin", "wrong-password")
	assert.Error(t, err)

	token, err := svc.Authenticate("admin", "correct-horse-battery-staple")
	require.NoError(t, err)

	claims, err := svc.VerifyAdminToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
}

func TestVerifyAdminTokenRejectsStreamToken(t *testing.T) {
	svc := newTestService()

	token, err := svc.IssueStreamToken(StreamClaims{ID: "abc", MediaType: MediaShow}, 0)
	require.NoError(t, err)

	_, err = svc.VerifyAdminToken(token)
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	assert.Equal(t, "xyz", ExtractToken("Bearer xyz", ""))
	assert.Equal(t, "xyz", ExtractToken("bearer xyz", ""))
	assert.Equal(t, "fromquery", ExtractToken("", "fromquery"))
	assert.Equal(t, "", ExtractToken("", ""))
	assert.Equal(t, "fallback", ExtractToken("Basic abc", "fallback"))
}
