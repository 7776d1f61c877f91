package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/minus-twelve/taskauth/types"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T, now func() time.Time) *Signer {
	t.Helper()
	s, err := NewSigner(types.TokenConfig{Secret: "test-secret", TTL: 5 * time.Minute}, WithClock(now))
	require.NoError(t, err)
	return s
}

func TestNewSigner_RequiresSecret(t *testing.T) {
	_, err := NewSigner(types.TokenConfig{})
	require.Error(t, err)
}

func TestIssueDecode(t *testing.T) {
	s := newTestSigner(t, time.Now)

	raw, issued, err := s.Issue(42)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	claims, err := s.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.UserID)
	require.Equal(t, issued.TokenID(), claims.TokenID())
	require.Equal(t, 5*time.Minute, claims.Lifetime())
	require.Equal(t, "42", claims.Subject)
}

func TestIssue_UniqueTokenIDs(t *testing.T) {
	s := newTestSigner(t, time.Now)

	_, a, err := s.Issue(1)
	require.NoError(t, err)
	_, b, err := s.Issue(1)
	require.NoError(t, err)
	require.NotEqual(t, a.TokenID(), b.TokenID())
}

func TestDecode_Rejects(t *testing.T) {
	s := newTestSigner(t, time.Now)
	raw, _, err := s.Issue(7)
	require.NoError(t, err)

	other, err := NewSigner(types.TokenConfig{Secret: "other-secret"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		signer *Signer
		raw    string
	}{
		{"empty", s, ""},
		{"garbage", s, "not-a-token"},
		{"tampered", s, raw[:len(raw)-2] + "xx"},
		{"wrong secret", other, raw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.signer.Decode(tt.raw)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestDecode_Expired(t *testing.T) {
	now := time.Now()
	s := newTestSigner(t, func() time.Time { return now })
	raw, _, err := s.Issue(3)
	require.NoError(t, err)

	now = now.Add(6 * time.Minute)
	_, err = s.Decode(raw)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "expired"))
}
