package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const DefaultTTL = 24 * time.Hour

var ErrTokenInvalid = errors.New("token is not valid")

// Claims утверждения токена пользователя
type Claims struct {
	jwt.RegisteredClaims
	UserCode string `json:"user_code"`
}

type Token struct {
	secret []byte
	ttl    time.Duration
}

func NewToken(secret string, ttl time.Duration) Token {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Token{secret: []byte(secret), ttl: ttl}
}

// BuildJWTString создаёт токен HS256 с кодом пользователя
func (t Token) BuildJWTString(userCode string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(t.ttl)),
		},
		UserCode: userCode,
	})

	tokenString, err := token.SignedString(t.secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// GetUserCode проверяет токен и возвращает код пользователя
func (t Token) GetUserCode(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", errors.Join(ErrTokenInvalid, err)
	}
	if !token.Valid || claims.UserCode == "" {
		return "", ErrTokenInvalid
	}
	return claims.UserCode, nil
}
