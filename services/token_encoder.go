package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Dosada05/event-registration/models"
	"github.com/golang-jwt/jwt/v4"
)

// TokenEncoder turns a ticket payload into the opaque display token that
// ends up in the participant's QR code.
type TokenEncoder interface {
	Encode(ctx context.Context, payload models.TicketPayload) (string, error)
}

// TokenDecoder verifies a display token presented at check-in.
type TokenDecoder interface {
	Decode(token string) (models.TicketPayload, error)
}

const ticketTokenIssuer = "event-registration"

type ticketClaims struct {
	models.TicketPayload
	jwt.RegisteredClaims
}

// JWTTicketCodec signs ticket payloads with HS256. Tokens carry no expiry;
// a ticket stays valid for as long as it exists.
type JWTTicketCodec struct {
	key []byte
	now func() time.Time
}

func NewJWTTicketCodec(signingKey string) *JWTTicketCodec {
	return &JWTTicketCodec{key: []byte(signingKey), now: time.Now}
}

func (c *JWTTicketCodec) Encode(ctx context.Context, payload models.TicketPayload) (string, error) {
	if payload.TicketID == "" {
		return "", fmt.Errorf("%w: empty ticket id", ErrTokenEncoding)
	}
	claims := ticketClaims{
		TicketPayload: payload,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   ticketTokenIssuer,
			Subject:  payload.ParticipantID,
			ID:       payload.TicketID,
			IssuedAt: jwt.NewNumericDate(c.now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenEncoding, err)
	}
	return signed, nil
}

func (c *JWTTicketCodec) Decode(token string) (models.TicketPayload, error) {
	var claims ticketClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.key, nil
	})
	if err != nil || !parsed.Valid {
		return models.TicketPayload{}, fmt.Errorf("%w: %v", ErrInvalidTicketToken, err)
	}
	if claims.Issuer != ticketTokenIssuer || claims.TicketID == "" {
		return models.TicketPayload{}, ErrInvalidTicketToken
	}
	return claims.TicketPayload, nil
}
