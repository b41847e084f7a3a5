package api

import (
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const userContextKey = "UserID"

// UserClaims is the JWT payload minted by loginUser, an alternative to
// X-API-KEY auth for session-style clients.
type UserClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

func generateToken(userID, secret string, expiresAt time.Time) (string, error) {
	claims := UserClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func parseToken(tokenStr, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	return claims.UserID, nil
}

// AuthMiddleware resolves the caller's user id from either an X-API-KEY
// header (the primary signing scheme, per §6) or a Bearer JWT minted by
// /auth/login, and rejects with -2014/-2015 on failure.
func AuthMiddleware(secret string, accounts accountAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey := c.GetHeader("X-API-KEY"); apiKey != "" {
			userID := accounts.Authenticate(apiKey)
			if userID == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": -2014, "msg": "API-key format invalid."})
				return
			}
			c.Set(userContextKey, userID)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": -2015, "msg": "Invalid API-key, IP, or permissions for action."})
			return
		}

		userID, err := parseToken(parts[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": -2015, "msg": "Invalid API-key, IP, or permissions for action."})
			return
		}

		c.Set(userContextKey, userID)
		c.Next()
	}
}

// accountAuthenticator is the slice of account.Manager the auth middleware
// depends on, narrowed so this file need not import internal/account.
type accountAuthenticator interface {
	Authenticate(apiKey string) string
}

// CurrentUserID returns the authenticated user id set by AuthMiddleware.
func CurrentUserID(c *gin.Context) string {
	if v, ok := c.Get(userContextKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// registerUser creates an account and returns its generated user id.
func (s *Server) registerUser(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1102, "msg": "Mandatory parameter was not sent, was empty/null, or malformed."})
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1102, "msg": "email and password are required"})
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1102, "msg": "invalid email format"})
		return
	}

	userID := uuid.NewString()
	if err := s.Accounts.RegisterUser(userID, req.Email, req.Password); err != nil {
		c.JSON(http.StatusConflict, gin.H{"code": -1000, "msg": "email already registered or registration failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"userId": userID, "email": req.Email})
}

// loginUser verifies credentials and mints a session JWT.
func (s *Server) loginUser(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1102, "msg": "Mandatory parameter was not sent, was empty/null, or malformed."})
		return
	}

	userID, err := s.Accounts.Login(req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": -2015, "msg": "invalid credentials"})
		return
	}

	expiresAt := time.Now().Add(72 * time.Hour)
	token, err := generateToken(userID, s.JWTSecret, expiresAt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": -1000, "msg": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
		"userId":    userID,
	})
}

// createAPIKey mints a new signing key for the authenticated user.
func (s *Server) createAPIKey(c *gin.Context) {
	userID := CurrentUserID(c)
	var req struct {
		Label string `json:"label"`
	}
	_ = c.BindJSON(&req)

	key, err := s.Accounts.CreateAPIKey(userID, req.Label)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": -1000, "msg": "failed to create api key"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"apiKey": key, "label": req.Label})
}
