package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zaqqye/seb_proctoring/internal/models"
	"github.com/zaqqye/seb_proctoring/internal/utils"
)

// AdminController manages accounts: proctors, students and detector services.
type AdminController struct {
	DB *gorm.DB
}

func userView(u models.User) gin.H {
	return gin.H{
		"user_id":    u.UserID,
		"full_name":  u.FullName,
		"email":      u.Email,
		"role":       u.Role,
		"active":     u.Active,
		"created_at": u.CreatedAt,
		"updated_at": u.UpdatedAt,
	}
}

func (a *AdminController) ListUsers(c *gin.Context) {
	// Query params: limit, page, sort_by, sort_dir, q, role, active
	limit := 50
	page := 1
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}

	sortBy := strings.ToLower(c.DefaultQuery("sort_by", "created_at"))
	sortDir := strings.ToUpper(c.DefaultQuery("sort_dir", "DESC"))
	if sortDir != "ASC" && sortDir != "DESC" {
		sortDir = "DESC"
	}
	allowedSorts := map[string]string{
		"id":         "id",
		"created_at": "created_at",
		"full_name":  "full_name",
		"email":      "email",
		"role":       "role",
		"active":     "active",
	}
	sortCol, ok := allowedSorts[sortBy]
	if !ok {
		sortCol = "created_at"
	}

	base := a.DB.Model(&models.User{})
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		base = base.Where("LOWER(full_name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}
	if role := strings.TrimSpace(strings.ToLower(c.Query("role"))); role != "" {
		if !models.IsValidRole(role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
			return
		}
		base = base.Where("role = ?", role)
	}
	if v := strings.TrimSpace(c.Query("active")); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid active filter"})
			return
		}
		base = base.Where("active = ?", active)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var users []models.User
	if err := base.Order(fmt.Sprintf("%s %s", sortCol, sortDir)).
		Limit(limit).Offset((page - 1) * limit).
		Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		out = append(out, userView(u))
	}
	c.JSON(http.StatusOK, gin.H{
		"data": out,
		"meta": gin.H{"total": total, "page": page, "limit": limit, "sort_by": sortCol, "sort_dir": sortDir},
	})
}

func (a *AdminController) findUser(c *gin.Context) (models.User, bool) {
	var u models.User
	err := a.DB.Where("user_id = ?", c.Param("user_id")).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return u, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return u, false
	}
	return u, true
}

func (a *AdminController) GetUser(c *gin.Context) {
	u, ok := a.findUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, userView(u))
}

type updateUserRequest struct {
	FullName *string               `json:"full_name"`
	Email    *string               `json:"email"`
	Password *utils.FlexibleString `json:"password"`
	Role     *string               `json:"role"`
	Active   *bool                 `json:"active"`
}

func (a *AdminController) UpdateUser(c *gin.Context) {
	u, ok := a.findUser(c)
	if !ok {
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.FullName != nil {
		u.FullName = *req.FullName
	}
	if req.Email != nil {
		u.Email = *req.Email
	}
	if req.Role != nil {
		if !models.IsValidRole(*req.Role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
			return
		}
		u.Role = *req.Role
	}
	if req.Active != nil {
		u.Active = *req.Active
	}
	if req.Password != nil {
		raw := strings.TrimSpace(req.Password.String())
		if raw != "" {
			pw, err := utils.HashPassword(raw)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
				return
			}
			u.Password = pw
		}
	}

	if err := a.DB.Save(&u).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, userView(u))
}

// DeleteUser removes the account and its refresh tokens.
func (a *AdminController) DeleteUser(c *gin.Context) {
	u, ok := a.findUser(c)
	if !ok {
		return
	}
	err := a.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id_ref = ?", u.UserID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		return tx.Delete(&u).Error
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
