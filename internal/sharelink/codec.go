package sharelink

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/qzplatform/qz-service/internal/models"
)

const issuer = "qz-service"

var (
	ErrInvalidToken = errors.New("invalid or expired link token")
	// ErrWindowClosed is returned when minting a link for a test whose end date has passed
	ErrWindowClosed = errors.New("test window has already closed")
)

// Claims is the test snapshot carried by a sharable link
type Claims struct {
	TestID          string                 `json:"testId"`
	TestName        string                 `json:"testName"`
	SharingType     models.LinkSharing     `json:"type"`
	Scheduling      models.Scheduling      `json:"scheduling"`
	TimeAndAttempts models.TimeAndAttempts `json:"timeAndAttempts"`
	Configuration   models.Configuration   `json:"configuration"`
	Proctoring      models.Proctoring      `json:"proctoring"`
	Assignment      models.Assignment      `json:"assignment"`
	AccessCode      string                 `json:"accessCode"`
	jwt.RegisteredClaims
}

type Link struct {
	URL       string             `json:"url"`
	Token     string             `json:"token"`
	Type      models.LinkSharing `json:"type"`
	ExpiresAt time.Time          `json:"expiresAt"`
}

// Codec signs and verifies link tokens with HS256
type Codec struct {
	secret  []byte
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

func NewCodec(secret, baseURL string, ttl time.Duration) *Codec {
	return &Codec{
		secret:  []byte(secret),
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the time source
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// Encode mints a link for test. The token expires after the configured TTL or
// at the test's end date, whichever comes first.
func (c *Codec) Encode(test *models.Test, sharing models.LinkSharing) (*Link, error) {
	now := c.now()
	if sharing != models.LinkPublic {
		sharing = models.LinkRestricted
	}

	expiresAt := now.Add(c.ttl)
	if end := test.Scheduling.EndDate; end != nil {
		if !end.After(now) {
			return nil, ErrWindowClosed
		}
		if end.Before(expiresAt) {
			expiresAt = *end
		}
	}

	claims := &Claims{
		TestID:          test.ID,
		TestName:        test.Title,
		SharingType:     sharing,
		Scheduling:      test.Scheduling,
		TimeAndAttempts: test.TimeAndAttempts,
		Configuration:   test.Configuration,
		Proctoring:      test.Proctoring,
		Assignment:      test.Assignment,
		AccessCode:      test.Configuration.AccessCode,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   test.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign link token: %w", err)
	}

	q := url.Values{}
	q.Set("token", token)
	q.Set("type", string(sharing))

	return &Link{
		URL:       c.baseURL + "/take-test?" + q.Encode(),
		Token:     token,
		Type:      sharing,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Decode verifies signature, issuer and expiry
func (c *Codec) Decode(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
