package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zaqqye/seb_proctoring/internal/middleware"
	"github.com/zaqqye/seb_proctoring/internal/models"
	"github.com/zaqqye/seb_proctoring/internal/utils"
)

type AuthController struct {
	DB   *gorm.DB
	Auth middleware.AuthConfig
}

type registerRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role"`
	Active   *bool  `json:"active"` // optional, defaults to true
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Register creates an account. Mounted under the admin group.
func (a *AuthController) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role := req.Role
	if role == "" {
		role = models.RoleStudent
	}
	if !models.IsValidRole(role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	pw, err := utils.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	user := models.User{
		FullName: req.FullName,
		Email:    req.Email,
		Password: pw,
		Role:     role,
		Active:   active,
	}
	if err := a.DB.Create(&user).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "registered",
		"user_id":   user.UserID,
		"email":     user.Email,
		"full_name": user.FullName,
		"role":      user.Role,
	})
}

func (a *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := a.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !user.Active || !utils.CheckPassword(user.Password, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	tokens, err := a.issueTokens(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// issueTokens signs an access token and a refresh token and persists the
// refresh token's hash.
func (a *AuthController) issueTokens(user models.User) (gin.H, error) {
	now := time.Now().UTC()
	access, err := middleware.IssueToken(user, a.Auth, now)
	if err != nil {
		return nil, err
	}
	jti := uuid.NewString()
	refresh, err := middleware.IssueRefreshToken(user, jti, a.Auth, now)
	if err != nil {
		return nil, err
	}
	rec := models.RefreshToken{
		TokenID:   jti,
		UserIDRef: user.UserID,
		TokenHash: utils.SHA256Hex(refresh),
		ExpiresAt: now.Add(a.Auth.RefreshTTL),
	}
	if err := a.DB.Create(&rec).Error; err != nil {
		return nil, err
	}
	return gin.H{
		"access_token":       access,
		"token_type":         "Bearer",
		"expires_in":         int(a.Auth.JWTExpiresIn.Seconds()),
		"refresh_token":      refresh,
		"refresh_expires_in": int(a.Auth.RefreshTTL.Seconds()),
		"token_id":           jti,
		"role":               user.Role,
	}, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh rotates a refresh token: the old one is revoked and points at its
// replacement.
func (a *AuthController) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := middleware.ParseRefreshToken(req.RefreshToken, a.Auth); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}

	var rec models.RefreshToken
	if err := a.DB.Where("token_hash = ?", utils.SHA256Hex(req.RefreshToken)).First(&rec).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token not found"})
		return
	}
	if !rec.Usable(time.Now().UTC()) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token expired or revoked"})
		return
	}
	var user models.User
	if err := a.DB.Where("user_id = ? AND active = ?", rec.UserIDRef, true).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found or inactive"})
		return
	}

	tokens, err := a.issueTokens(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	now := time.Now().UTC()
	if err := a.DB.Model(&rec).Updates(map[string]interface{}{
		"revoked_at":           &now,
		"replaced_by_token_id": tokens["token_id"],
	}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tokens)
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	All          bool   `json:"all"`
}

// Logout revokes one refresh token, or all of the caller's. Access tokens stay
// valid until they expire.
func (a *AuthController) Logout(c *gin.Context) {
	var req logoutRequest
	_ = c.ShouldBindJSON(&req)
	user, _ := middleware.CurrentUser(c)
	now := time.Now().UTC()

	q := a.DB.Model(&models.RefreshToken{}).Where("user_id_ref = ? AND revoked_at IS NULL", user.UserID)
	switch {
	case req.All:
	case req.RefreshToken != "":
		q = q.Where("token_hash = ?", utils.SHA256Hex(req.RefreshToken))
	default:
		c.JSON(http.StatusOK, gin.H{"message": "logged out", "revoked": 0})
		return
	}
	res := q.Update("revoked_at", &now)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out", "revoked": res.RowsAffected})
}

func (a *AuthController) Me(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"user_id":    user.UserID,
		"email":      user.Email,
		"full_name":  user.FullName,
		"role":       user.Role,
		"active":     user.Active,
		"created_at": user.CreatedAt,
		"updated_at": user.UpdatedAt,
	})
}
