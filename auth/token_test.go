package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	req := require.New(t)
	tokens := NewTokenManager("test-secret", time.Hour)

	token, err := tokens.GenerateToken("alice")
	req.NoError(err)

	claims, err := tokens.ValidateToken(token)
	req.NoError(err)
	req.Equal("alice", claims.IdentityID)
	req.Equal("chat-engine", claims.Issuer)
}

func TestTokenManager_Rejects_Foreign_Signature(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenManager("secret-a", time.Hour)
	verifier := NewTokenManager("secret-b", time.Hour)

	token, err := issuer.GenerateToken("alice")
	req.NoError(err)

	_, err = verifier.ValidateToken(token)
	req.Error(err)
}

func TestTokenManager_Rejects_Expired_Token(t *testing.T) {
	req := require.New(t)
	tokens := NewTokenManager("test-secret", -time.Minute)

	token, err := tokens.GenerateToken("alice")
	req.NoError(err)

	_, err = tokens.ValidateToken(token)
	req.Error(err)
}
