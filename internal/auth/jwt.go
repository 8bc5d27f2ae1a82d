package auth

import (
	"crypto/rsa"
	"errors"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yourorg/support-chat/internal/chat"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidClaims = errors.New("invalid claims")
)

// Verifier validates bearer tokens and extracts the participant identity.
type Verifier struct {
	secret []byte
	pub    *rsa.PublicKey
}

func NewVerifierHS256(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

func NewVerifierRS256(pubKeyPath string) (*Verifier, error) {
	b, err := os.ReadFile(pubKeyPath)
	if err != nil {
		return nil, err
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(b)
	if err != nil {
		return nil, err
	}
	return &Verifier{pub: pub}, nil
}

// Verify parses and validates tokenStr and returns the participant it
// identifies. Role defaults to "user" when the claim is absent.
func (v *Verifier) Verify(tokenStr string) (chat.Participant, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if v.pub != nil {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return v.pub, nil
		}
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return chat.Participant{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return chat.Participant{}, ErrInvalidClaims
	}
	id, ok := claims["user_id"].(string)
	if !ok || id == "" {
		return chat.Participant{}, ErrInvalidClaims
	}
	role := chat.RoleUser
	if r, ok := claims["role"].(string); ok && chat.Role(r) == chat.RoleAdmin {
		role = chat.RoleAdmin
	}
	return chat.Participant{ID: id, Role: role}, nil
}
