package mux

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token audiences distinguishing playback tokens from thumbnail tokens.
const (
	AudiencePlayback  = "v"
	AudienceThumbnail = "t"
)

// URLSigner produces short-lived signed playback and thumbnail URLs.
// Without signing material it degrades to plain unsigned URLs, which is a
// supported mode for environments without signed playback policies.
type URLSigner struct {
	keyID      string
	privateKey *rsa.PrivateKey
	streamBase string
	imageBase  string
	ttl        time.Duration
}

// NewURLSigner creates a signer from a signing key id and a base64-encoded
// PEM private key. Empty signing material yields an unsigned-URL signer.
func NewURLSigner(keyID, base64Key, streamBase, imageBase string, ttlSeconds int) (*URLSigner, error) {
	if ttlSeconds <= 0 {
		ttlSeconds = 3600
	}

	signer := &URLSigner{
		keyID:      keyID,
		streamBase: strings.TrimRight(streamBase, "/"),
		imageBase:  strings.TrimRight(imageBase, "/"),
		ttl:        time.Duration(ttlSeconds) * time.Second,
	}

	if keyID == "" || base64Key == "" {
		return signer, nil
	}

	pemBytes, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("decode signing key: %w", err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}

	signer.privateKey = privateKey
	return signer, nil
}

// Enabled reports whether signed URLs can be produced.
func (s *URLSigner) Enabled() bool {
	return s.privateKey != nil
}

// SignedURL carries a playback or thumbnail URL plus its token and expiry.
// Token is empty in unsigned mode.
type SignedURL struct {
	URL       string    `json:"url"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PlaybackURL returns a signed HLS playback URL for the given playback id.
func (s *URLSigner) PlaybackURL(playbackID string) (SignedURL, error) {
	if strings.TrimSpace(playbackID) == "" {
		return SignedURL{}, fmt.Errorf("playback id is required")
	}

	expiresAt := time.Now().Add(s.ttl)
	base := fmt.Sprintf("%s/%s.m3u8", s.streamBase, playbackID)

	if !s.Enabled() {
		return SignedURL{URL: base, ExpiresAt: expiresAt}, nil
	}

	token, err := s.sign(playbackID, AudiencePlayback, expiresAt, nil)
	if err != nil {
		return SignedURL{}, err
	}

	return SignedURL{
		URL:       base + "?token=" + token,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// ThumbnailOptions tunes thumbnail rendering.
type ThumbnailOptions struct {
	TimeSeconds *float64
	Width       *int
}

// ThumbnailURL returns a signed thumbnail URL for the given playback id.
func (s *URLSigner) ThumbnailURL(playbackID string, opts ThumbnailOptions) (SignedURL, error) {
	if strings.TrimSpace(playbackID) == "" {
		return SignedURL{}, fmt.Errorf("playback id is required")
	}

	expiresAt := time.Now().Add(s.ttl)
	base := fmt.Sprintf("%s/%s/thumbnail.jpg", s.imageBase, playbackID)

	if !s.Enabled() {
		query := url.Values{}
		if opts.TimeSeconds != nil {
			query.Set("time", strconv.FormatFloat(*opts.TimeSeconds, 'f', -1, 64))
		}
		if opts.Width != nil {
			query.Set("width", strconv.Itoa(*opts.Width))
		}
		if encoded := query.Encode(); encoded != "" {
			base += "?" + encoded
		}
		return SignedURL{URL: base, ExpiresAt: expiresAt}, nil
	}

	extra := jwt.MapClaims{}
	if opts.TimeSeconds != nil {
		extra["time"] = *opts.TimeSeconds
	}
	if opts.Width != nil {
		extra["width"] = *opts.Width
	}

	token, err := s.sign(playbackID, AudienceThumbnail, expiresAt, extra)
	if err != nil {
		return SignedURL{}, err
	}

	return SignedURL{
		URL:       base + "?token=" + token,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyToken validates a token's signature, expiry and audience.
// A playback token is never valid for the thumbnail audience and vice versa.
func (s *URLSigner) VerifyToken(token, audience string) (jwt.MapClaims, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("signing is not configured")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(audience),
	)

	parsed, err := parser.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return s.privateKey.Public(), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type")
	}

	return claims, nil
}

func (s *URLSigner) sign(playbackID, audience string, expiresAt time.Time, extra jwt.MapClaims) (string, error) {
	claims := jwt.MapClaims{
		"sub": playbackID,
		"aud": audience,
		"exp": expiresAt.Unix(),
		"kid": s.keyID,
	}
	for key, value := range extra {
		claims[key] = value
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}
