package ginserver

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"kisaanconnect/internal/app/dto"
	authsvc "kisaanconnect/internal/app/services/auth"
	domainuser "kisaanconnect/internal/domain/user"
)

type AuthHTTP interface {
	Register(c *gin.Context)
	Login(c *gin.Context)
	Logout(c *gin.Context)
	ForgotPassword(c *gin.Context)
	ResetPassword(c *gin.Context)
	Me(c *gin.Context)
	UpdateMe(c *gin.Context)
	PushToken(c *gin.Context)
}

// SessionCookie describes the cookie that carries the session token.
type SessionCookie struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

type AuthHandler struct {
	Service *authsvc.Service
	Cookie  SessionCookie
	Logger  *slog.Logger
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type pushTokenRequest struct {
	Token string `json:"token"`
}

func (h AuthHandler) Register(c *gin.Context) {
	picture, err := formImage(c, "profilePicture")
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	user, err := h.Service.Register(c.Request.Context(), authsvc.RegisterParams{
		FullName: c.PostForm("fullName"),
		Phone:    c.PostForm("phoneNumber"),
		Email:    c.PostForm("email"),
		Password: c.PostForm("password"),
		Location: formLocation(c),
		Picture:  picture,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Registered successfully",
		"user":    dto.MapUserProfile(user),
	})
}

func (h AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "identifier and password are required")
		return
	}
	result, err := h.Service.Login(c.Request.Context(), authsvc.LoginParams{
		Identifier: req.Identifier,
		Password:   req.Password,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	h.setCookie(c, result.Token, int(h.Cookie.TTL/time.Second))
	c.JSON(http.StatusOK, dto.NewAuthResponse(result.User, result.Token))
}

func (h AuthHandler) Logout(c *gin.Context) {
	token := requestToken(c, h.Cookie.Name)
	if err := h.Service.Logout(c.Request.Context(), token); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("logout failed", "error", err)
		}
	}
	h.setCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		badRequest(c, "email is required")
		return
	}
	if err := h.Service.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		if domainuser.IsValidationError(err) {
			respondError(c, h.Logger, err)
			return
		}
		if h.Logger != nil {
			h.Logger.Error("password reset request failed", "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "If that email is registered, a reset link is on its way.",
	})
}

func (h AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		badRequest(c, "token and newPassword are required")
		return
	}
	if err := h.Service.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password updated. Please log in again."})
}

func (h AuthHandler) Me(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	user, err := h.Service.Profile(c.Request.Context(), domainuser.ID(p.ID))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": dto.MapUserProfile(user)})
}

func (h AuthHandler) UpdateMe(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	picture, err := formImage(c, "profilePicture")
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	params := authsvc.UpdateProfileParams{UserID: domainuser.ID(p.ID), Picture: picture}
	if v, ok := c.GetPostForm("fullName"); ok {
		params.FullName = &v
	}
	if v, ok := c.GetPostForm("email"); ok {
		params.Email = &v
	}
	if hasLocationFields(c) {
		loc := formLocation(c)
		params.Location = &loc
	}
	user, err := h.Service.UpdateProfile(c.Request.Context(), params)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": dto.MapUserProfile(user)})
}

func (h AuthHandler) PushToken(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	var req pushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "token is required")
		return
	}
	if err := h.Service.SetPushToken(c.Request.Context(), domainuser.ID(p.ID), req.Token); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h AuthHandler) setCookie(c *gin.Context, value string, maxAge int) {
	if h.Cookie.Name == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.Cookie.Name, value, maxAge, "/", "", h.Cookie.Secure, true)
}

var locationFields = []string{"state", "district", "villageTown", "pinCode"}

func formLocation(c *gin.Context) domainuser.Location {
	return domainuser.Location{
		State:       c.PostForm("state"),
		District:    c.PostForm("district"),
		VillageTown: c.PostForm("villageTown"),
		PinCode:     c.PostForm("pinCode"),
	}
}

func hasLocationFields(c *gin.Context) bool {
	for _, field := range locationFields {
		if _, ok := c.GetPostForm(field); ok {
			return true
		}
	}
	return false
}

var _ AuthHTTP = (*AuthHandler)(nil)
