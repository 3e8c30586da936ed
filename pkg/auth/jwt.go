package auth

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/yourusername/placement-api/internal/domain/entity"
	apperrors "github.com/yourusername/placement-api/internal/pkg/errors"
)

const (
	issuer         = "placement-api"
	audienceAPI    = "placement-api"
	audienceWS     = "placement-ws"
	usageWSTicket  = "websocket_auth"
	minSecretBytes = 16
)

// JWTCustomClaims содержит пользовательские поля для токена
type JWTCustomClaims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Usage    string `json:"usage,omitempty"`
	jwt.RegisteredClaims
}

// JWTService выпускает и проверяет HS256 токены доступа и WS-тикеты
type JWTService struct {
	secret         []byte
	expiration     time.Duration
	wsTicketExpiry time.Duration
	now            func() time.Time
}

// NewJWTService создает сервис JWT
func NewJWTService(secret string, expirationHrs int, wsTicketExpirySec int) (*JWTService, error) {
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretBytes)
	}
	if expirationHrs <= 0 {
		expirationHrs = 24
	}
	if wsTicketExpirySec <= 0 {
		wsTicketExpirySec = 60
	}
	return &JWTService{
		secret:         []byte(secret),
		expiration:     time.Duration(expirationHrs) * time.Hour,
		wsTicketExpiry: time.Duration(wsTicketExpirySec) * time.Second,
		now:            time.Now,
	}, nil
}

// Expiration возвращает время жизни токена доступа
func (s *JWTService) Expiration() time.Duration {
	return s.expiration
}

// GenerateToken создает токен доступа для пользователя
func (s *JWTService) GenerateToken(user *entity.User) (string, error) {
	now := s.now()
	claims := &JWTCustomClaims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   fmt.Sprintf("%d", user.ID),
			Audience:  jwt.ClaimStrings{audienceAPI},
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		log.Printf("[JWT] Ошибка генерации токена для пользователя ID=%d: %v", user.ID, err)
		return "", err
	}
	return signed, nil
}

// ParseToken проверяет токен доступа. WS-тикет токеном доступа не является.
func (s *JWTService) ParseToken(tokenString string) (*JWTCustomClaims, error) {
	claims, err := s.parse(tokenString, audienceAPI)
	if err != nil {
		return nil, err
	}
	if claims.Usage != "" {
		return nil, fmt.Errorf("%w: token usage %q is not allowed here", apperrors.ErrUnauthorized, claims.Usage)
	}
	return claims, nil
}

// GenerateWSTicket создает короткоживущий JWT для аутентификации WebSocket
func (s *JWTService) GenerateWSTicket(userID uint, username, role string) (string, error) {
	now := s.now()
	claims := &JWTCustomClaims{
		UserID:   userID,
		Username: username,
		Role:     role,
		Usage:    usageWSTicket,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.wsTicketExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   fmt.Sprintf("%d", userID),
			Audience:  jwt.ClaimStrings{audienceWS},
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		log.Printf("[JWT] Ошибка генерации WS-тикета для пользователя ID=%d: %v", userID, err)
		return "", err
	}
	return signed, nil
}

// ParseWSTicket проверяет WS-тикет
func (s *JWTService) ParseWSTicket(ticketString string) (*JWTCustomClaims, error) {
	claims, err := s.parse(ticketString, audienceWS)
	if err != nil {
		return nil, err
	}
	if claims.Usage != usageWSTicket {
		return nil, fmt.Errorf("%w: invalid ticket usage", apperrors.ErrUnauthorized)
	}
	return claims, nil
}

func (s *JWTService) parse(tokenString, audience string) (*JWTCustomClaims, error) {
	claims := &JWTCustomClaims{}
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}

	parser := jwt.Parser{}
	token, err := parser.ParseWithClaims(tokenString, claims, keyFunc)
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) {
			switch {
			case ve.Errors&jwt.ValidationErrorMalformed != 0:
				return nil, fmt.Errorf("%w: token is malformed", apperrors.ErrUnauthorized)
			case ve.Errors&jwt.ValidationErrorExpired != 0:
				return nil, apperrors.ErrExpiredToken
			case ve.Errors&jwt.ValidationErrorNotValidYet != 0:
				return nil, fmt.Errorf("%w: token not valid yet", apperrors.ErrUnauthorized)
			case ve.Errors&jwt.ValidationErrorSignatureInvalid != 0:
				log.Printf("[JWT] Неверная подпись токена (user_id=%d)", claims.UserID)
				return nil, fmt.Errorf("%w: signature is invalid", apperrors.ErrUnauthorized)
			}
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", apperrors.ErrUnauthorized)
	}
	if !claims.VerifyAudience(audience, true) {
		return nil, fmt.Errorf("%w: wrong token audience", apperrors.ErrUnauthorized)
	}
	return claims, nil
}
