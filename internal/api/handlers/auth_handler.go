package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"nestlist/internal/api/middleware"
	"nestlist/internal/apperr"
	"nestlist/internal/auth"
	"nestlist/internal/captcha"
	"nestlist/internal/config"
	"nestlist/internal/services"
	"nestlist/internal/validation"
)

// AuthHandler handles signup, signin and signout.
type AuthHandler struct {
	cfg             *config.Config
	userService     services.IUserService
	captchaVerifier captcha.IVerifier
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(cfg *config.Config, userService services.IUserService, captchaVerifier captcha.IVerifier) *AuthHandler {
	return &AuthHandler{
		cfg:             cfg,
		userService:     userService,
		captchaVerifier: captchaVerifier,
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Signup handles POST /api/auth/signup. All client-side form checks are
// repeated here; the browser is not a security boundary.
func (h *AuthHandler) Signup(c *gin.Context) {
	var in validation.SignupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Validation("Invalid request body"))
		return
	}

	if err := validation.ValidateSignup(&in); err != nil {
		fail(c, err)
		return
	}

	ok, err := h.captchaVerifier.Verify(c.Request.Context(), in.CaptchaToken, c.ClientIP())
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}
	if !ok {
		fail(c, apperr.Validation("CAPTCHA verification failed"))
		return
	}

	avatar := in.Avatar
	if avatar == "" {
		avatar = h.cfg.DefaultAvatarURL
	}

	user, err := h.userService.CreateUser(c.Request.Context(), in.Username, in.Email, in.Aadhaar, in.Password, avatar)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUsernameExists):
			fail(c, apperr.Validation("Username is already taken"))
		case errors.Is(err, services.ErrEmailExists):
			fail(c, apperr.Validation("Email is already in use"))
		default:
			fail(c, apperr.Internal(err))
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"user": gin.H{
			"id":       user.ID.Hex(),
			"username": user.Username,
			"email":    user.Email,
		},
	})
}

// Signin handles POST /api/auth/signin.
func (h *AuthHandler) Signin(c *gin.Context) {
	var in credentialsRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Validation("Invalid request body"))
		return
	}

	user, err := h.userService.FindByUsername(c.Request.Context(), in.Username)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			fail(c, apperr.NotFound("User not found!"))
		} else {
			fail(c, apperr.Internal(err))
		}
		return
	}

	if !auth.CheckPasswordHash(in.Password, user.PasswordHash) {
		fail(c, apperr.Unauthorized("Wrong credentials!"))
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Username, user.IsAdmin, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}

	h.setAuthCookie(c, token)
	c.JSON(http.StatusOK, user)
}

// SigninAdmin handles POST /api/auth/admin. The admin account lives in
// configuration; the issued token carries a server-verified admin claim, so
// no client-supplied role flag is ever trusted.
func (h *AuthHandler) SigninAdmin(c *gin.Context) {
	var in credentialsRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Validation("Invalid request body"))
		return
	}

	if h.cfg.AdminPasswordHash == "" {
		fail(c, apperr.Unauthorized("Admin signin is not configured"))
		return
	}
	if in.Username != h.cfg.AdminUsername || !auth.CheckPasswordHash(in.Password, h.cfg.AdminPasswordHash) {
		fail(c, apperr.Unauthorized("Wrong credentials!"))
		return
	}

	token, err := auth.GenerateJWT(primitive.NilObjectID, h.cfg.AdminUsername, true, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}

	h.setAuthCookie(c, token)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user": gin.H{
			"username": h.cfg.AdminUsername,
			"is_admin": true,
		},
	})
}

// Signout handles GET /api/auth/signout.
func (h *AuthHandler) Signout(c *gin.Context) {
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "User has been logged out!"})
}

func (h *AuthHandler) setAuthCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, token, int(h.cfg.JwtTTL.Seconds()), "/", "", false, true)
}
