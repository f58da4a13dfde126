package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("req-1", "requests/abc-cor.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	owner, path, parsedExpiry, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "req-1", owner)
	require.Equal(t, "requests/abc-cor.pdf", path)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Generate("req-1", "requests/a.pdf")
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, _, _, err = signer.Parse(token)
	require.Error(t, err)
}

func TestSignedURLSignerTampered(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("req-1", "requests/a.pdf")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	other, _, err := signer.Generate("req-2", "requests/a.pdf")
	require.NoError(t, err)
	parts[0] = strings.Split(other, ".")[0]

	_, _, _, err = signer.Parse(strings.Join(parts, "."))
	require.Error(t, err)

	_, _, _, err = NewSignedURLSigner("other", time.Hour).Parse(token)
	require.Error(t, err)
}
