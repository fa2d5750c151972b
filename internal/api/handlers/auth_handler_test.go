package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"nestlist/internal/api/handlers"
	"nestlist/internal/api/middleware"
	"nestlist/internal/auth"
	"nestlist/internal/config"
	"nestlist/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		JwtSecret:        "test-secret",
		JwtTTL:           time.Hour,
		AdminUsername:    "admin",
		DefaultAvatarURL: "https://example.com/default-avatar.png",
	}
}

func signupBody(t *testing.T, overrides map[string]interface{}) []byte {
	t.Helper()
	body := map[string]interface{}{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "Str0ngPass",
		"aadhaar":  "123456789012",
	}
	for k, v := range overrides {
		body[k] = v
	}
	data, err := json.Marshal(body)
	assert.NoError(t, err)
	return data
}

func setupAuthRouter(cfg *config.Config, userSvc *MockUserService, captcha *MockCaptchaVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := handlers.NewAuthHandler(cfg, userSvc, captcha)
	r := gin.New()
	r.POST("/api/auth/signup", handler.Signup)
	r.POST("/api/auth/signin", handler.Signin)
	r.POST("/api/auth/admin", handler.SigninAdmin)
	r.GET("/api/auth/signout", handler.Signout)
	return r
}

func TestAuthHandler_Signup_Success(t *testing.T) {
	mockUserSvc := new(MockUserService)
	mockCaptcha := new(MockCaptchaVerifier)
	cfg := testConfig()
	r := setupAuthRouter(cfg, mockUserSvc, mockCaptcha)

	mockCaptcha.On("Verify", mock.Anything, "", mock.Anything).Return(true, nil)
	createdUser := &models.User{
		ID:       primitive.NewObjectID(),
		Username: "alice",
		Email:    "alice@example.com",
	}
	mockUserSvc.On("CreateUser", mock.Anything, "alice", "alice@example.com", "123456789012", "Str0ngPass", cfg.DefaultAvatarURL).
		Return(createdUser, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/auth/signup", bytes.NewReader(signupBody(t, nil)))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var respBody map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Equal(t, true, respBody["success"])
	user := respBody["user"].(map[string]interface{})
	assert.Equal(t, "alice", user["username"])
	mockUserSvc.AssertExpectations(t)
	mockCaptcha.AssertExpectations(t)
}

func TestAuthHandler_Signup_ValidationFailures(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]interface{}
		message   string
	}{
		{"reserved username", map[string]interface{}{"username": "admin"}, "This username is not allowed"},
		{"reserved username mixed case", map[string]interface{}{"username": "Admin"}, "This username is not allowed"},
		{"short password", map[string]interface{}{"password": "Ab1"}, "Password should be at least 8 characters long"},
		{"no uppercase", map[string]interface{}{"password": "alllower1"}, "Password should contain a mix of uppercase and lowercase letters"},
		{"no digit", map[string]interface{}{"password": "NoDigitsHere"}, "Password should contain at least one digit"},
		{"short aadhaar", map[string]interface{}{"aadhaar": "12345"}, "Aadhaar should have a length of 12 digits"},
		{"bad email", map[string]interface{}{"email": "not-an-email"}, "A valid email address is required"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mockUserSvc := new(MockUserService)
			mockCaptcha := new(MockCaptchaVerifier)
			r := setupAuthRouter(testConfig(), mockUserSvc, mockCaptcha)

			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/api/auth/signup", bytes.NewReader(signupBody(t, tc.overrides)))
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			var respBody map[string]interface{}
			assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
			assert.Equal(t, false, respBody["success"])
			assert.Equal(t, tc.message, respBody["message"])
			mockUserSvc.AssertNotCalled(t, "CreateUser")
		})
	}
}

func TestAuthHandler_Signup_CaptchaRejected(t *testing.T) {
	mockUserSvc := new(MockUserService)
	mockCaptcha := new(MockCaptchaVerifier)
	r := setupAuthRouter(testConfig(), mockUserSvc, mockCaptcha)

	mockCaptcha.On("Verify", mock.Anything, "bad-token", mock.Anything).Return(false, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/auth/signup",
		bytes.NewReader(signupBody(t, map[string]interface{}{"captchaToken": "bad-token"})))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var respBody map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Equal(t, "CAPTCHA verification failed", respBody["message"])
	mockUserSvc.AssertNotCalled(t, "CreateUser")
}

func TestAuthHandler_Signin_Success(t *testing.T) {
	mockUserSvc := new(MockUserService)
	mockCaptcha := new(MockCaptchaVerifier)
	cfg := testConfig()
	r := setupAuthRouter(cfg, mockUserSvc, mockCaptcha)

	hash, err := auth.HashPassword("Str0ngPass")
	assert.NoError(t, err)
	user := &models.User{
		ID:           primitive.NewObjectID(),
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: hash,
	}
	mockUserSvc.On("FindByUsername", mock.Anything, "alice").Return(user, nil)

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "Str0ngPass"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/auth/signin", bytes.NewReader(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var tokenCookie *http.Cookie
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == middleware.AccessTokenCookie {
			tokenCookie = cookie
		}
	}
	if assert.NotNil(t, tokenCookie, "signin should set the access token cookie") {
		assert.True(t, tokenCookie.HttpOnly)
		claims, err := auth.ValidateJWT(tokenCookie.Value, cfg.JwtSecret)
		assert.NoError(t, err)
		assert.Equal(t, user.ID.Hex(), claims.UserID)
		assert.False(t, claims.IsAdmin)
	}

	// The hash must never appear in the response body.
	assert.NotContains(t, w.Body.String(), hash)
	mockUserSvc.AssertExpectations(t)
}

func TestAuthHandler_Signin_UnknownUser(t *testing.T) {
	mockUserSvc := new(MockUserService)
	r := setupAuthRouter(testConfig(), mockUserSvc, new(MockCaptchaVerifier))

	mockUserSvc.On("FindByUsername", mock.Anything, "ghost").Return(nil, mongo.ErrNoDocuments)

	body, _ := json.Marshal(map[string]string{"username": "ghost", "password": "Whatever1"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/auth/signin", bytes.NewReader(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var respBody map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Equal(t, "User not found!", respBody["message"])
}

func TestAuthHandler_Signin_WrongPassword(t *testing.T) {
	mockUserSvc := new(MockUserService)
	r := setupAuthRouter(testConfig(), mockUserSvc, new(MockCaptchaVerifier))

	hash, _ := auth.HashPassword("CorrectPass1")
	user := &models.User{ID: primitive.NewObjectID(), Username: "alice", PasswordHash: hash}
	mockUserSvc.On("FindByUsername", mock.Anything, "alice").Return(user, nil)

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "WrongPass1"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/auth/signin", bytes.NewReader(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var respBody map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Equal(t, "Wrong credentials!", respBody["message"])
	assert.Empty(t, w.Result().Cookies())
}

func TestAuthHandler_SigninAdmin_Success(t *testing.T) {
	cfg := testConfig()
	hash, err := auth.HashPassword("Sup3rSecret")
	assert.NoError(t, err)
	cfg.AdminPasswordHash = hash

	r := setupAuthRouter(cfg, new(MockUserService), new(MockCaptchaVerifier))

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "Sup3rSecret"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/auth/admin", bytes.NewReader(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var tokenCookie *http.Cookie
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == middleware.AccessTokenCookie {
			tokenCookie = cookie
		}
	}
	if assert.NotNil(t, tokenCookie) {
		claims, err := auth.ValidateJWT(tokenCookie.Value, cfg.JwtSecret)
		assert.NoError(t, err)
		assert.True(t, claims.IsAdmin, "admin signin must issue a token with the admin claim")
	}
}

func TestAuthHandler_SigninAdmin_WrongPassword(t *testing.T) {
	cfg := testConfig()
	hash, _ := auth.HashPassword("Sup3rSecret")
	cfg.AdminPasswordHash = hash

	r := setupAuthRouter(cfg, new(MockUserService), new(MockCaptchaVerifier))

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "NotTheOne1"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/auth/admin", bytes.NewReader(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var respBody map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Equal(t, "Wrong credentials!", respBody["message"])
}

func TestAuthHandler_SigninAdmin_NotConfigured(t *testing.T) {
	r := setupAuthRouter(testConfig(), new(MockUserService), new(MockCaptchaVerifier))

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "Whatever1"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/auth/admin", bytes.NewReader(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_Signout_ClearsCookie(t *testing.T) {
	r := setupAuthRouter(testConfig(), new(MockUserService), new(MockCaptchaVerifier))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/auth/signout", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Equal(t, "User has been logged out!", respBody["message"])

	var cleared bool
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == middleware.AccessTokenCookie && cookie.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "signout should expire the access token cookie")
}
