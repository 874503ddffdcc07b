package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/yakoovad/flowboard/internal/model"
)

// TokenClaims identify the actor. The subject carries the user id.
type TokenClaims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Tokens verifies bearer tokens issued by the identity provider. Issuing is
// only used by tests and tooling.
type Tokens struct {
	secret []byte
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret)}
}

func (t *Tokens) GenerateToken(actor model.Actor, dur time.Duration) (string, error) {
	claims := TokenClaims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(actor.UserID, 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(dur)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

func (t *Tokens) VerifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			alg, _ := token.Header["alg"].(string)
			return nil, errors.Wrap(ErrInvalidSigningMethod, alg)
		}
		return t.secret, nil
	})

	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// ActorFromToken verifies the token and turns its claims into an actor.
func (t *Tokens) ActorFromToken(tokenString string) (model.Actor, error) {
	claims, err := t.VerifyToken(tokenString)
	if err != nil {
		return model.Actor{}, err
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return model.Actor{}, errors.Wrap(ErrInvalidToken, "subject")
	}

	role, err := model.ParseRole(string(claims.Role))
	if err != nil {
		return model.Actor{}, errors.Wrap(ErrInvalidToken, err.Error())
	}

	return model.Actor{UserID: id, Role: role}, nil
}

func (t *Tokens) IsValidToken(tokenString string) (model.Actor, bool) {
	actor, err := t.ActorFromToken(tokenString)
	if err != nil {
		return model.Actor{}, false
	}
	return actor, true
}
