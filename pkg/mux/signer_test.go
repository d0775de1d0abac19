package mux

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSigningKey(t *testing.T) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	block := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	return base64.StdEncoding.EncodeToString(block)
}

func newSignedSigner(t *testing.T) *URLSigner {
	t.Helper()

	signer, err := NewURLSigner("key-1", testSigningKey(t), "https://stream.test", "https://image.test", 3600)
	require.NoError(t, err)
	require.True(t, signer.Enabled())

	return signer
}

func TestUnsignedModeServesPlainURLs(t *testing.T) {
	signer, err := NewURLSigner("", "", "https://stream.test/", "https://image.test/", 0)
	require.NoError(t, err)
	require.False(t, signer.Enabled())

	playback, err := signer.PlaybackURL("pb123")
	require.NoError(t, err)
	assert.Equal(t, "https://stream.test/pb123.m3u8", playback.URL)
	assert.Empty(t, playback.Token)
	assert.True(t, playback.ExpiresAt.After(time.Now()))

	width := 640
	thumb, err := signer.ThumbnailURL("pb123", ThumbnailOptions{Width: &width})
	require.NoError(t, err)
	assert.Equal(t, "https://image.test/pb123/thumbnail.jpg?width=640", thumb.URL)
	assert.Empty(t, thumb.Token)
}

func TestSignedPlaybackToken(t *testing.T) {
	signer := newSignedSigner(t)

	playback, err := signer.PlaybackURL("pb123")
	require.NoError(t, err)
	require.NotEmpty(t, playback.Token)
	assert.Contains(t, playback.URL, "https://stream.test/pb123.m3u8?token=")

	claims, err := signer.VerifyToken(playback.Token, AudiencePlayback)
	require.NoError(t, err)

	assert.Equal(t, "pb123", claims["sub"])
	assert.Equal(t, "key-1", claims["kid"])
}

func TestAudiencesAreNotInterchangeable(t *testing.T) {
	signer := newSignedSigner(t)

	playback, err := signer.PlaybackURL("pb123")
	require.NoError(t, err)

	thumb, err := signer.ThumbnailURL("pb123", ThumbnailOptions{})
	require.NoError(t, err)

	// A playback token must not pass as a thumbnail token and vice versa.
	_, err = signer.VerifyToken(playback.Token, AudienceThumbnail)
	assert.Error(t, err)

	_, err = signer.VerifyToken(thumb.Token, AudiencePlayback)
	assert.Error(t, err)

	_, err = signer.VerifyToken(playback.Token, AudiencePlayback)
	assert.NoError(t, err)

	_, err = signer.VerifyToken(thumb.Token, AudienceThumbnail)
	assert.NoError(t, err)
}

func TestThumbnailClaimsCarryRenderOptions(t *testing.T) {
	signer := newSignedSigner(t)

	seconds := 12.5
	width := 320
	thumb, err := signer.ThumbnailURL("pb123", ThumbnailOptions{TimeSeconds: &seconds, Width: &width})
	require.NoError(t, err)

	claims, err := signer.VerifyToken(thumb.Token, AudienceThumbnail)
	require.NoError(t, err)

	assert.Equal(t, 12.5, claims["time"])
	assert.Equal(t, float64(320), claims["width"])
}

func TestEmptyPlaybackIDRejected(t *testing.T) {
	signer := newSignedSigner(t)

	_, err := signer.PlaybackURL("  ")
	assert.Error(t, err)

	_, err = signer.ThumbnailURL("", ThumbnailOptions{})
	assert.Error(t, err)
}

func TestInvalidSigningKeyRejected(t *testing.T) {
	_, err := NewURLSigner("key-1", "not-base64!!", "https://stream.test", "https://image.test", 3600)
	assert.Error(t, err)

	bogus := base64.StdEncoding.EncodeToString([]byte("not a pem key"))
	_, err = NewURLSigner("key-1", bogus, "https://stream.test", "https://image.test", 3600)
	assert.Error(t, err)
}
