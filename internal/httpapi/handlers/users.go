package handlers

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lingochat/internal/auth"
	"lingochat/internal/common"
	"lingochat/internal/email"
	"lingochat/internal/models"
)

const tokenTTL = 24 * time.Hour

type sendCaptchaReq struct {
	Email string `json:"email" binding:"required,email"`
}

// SendCaptcha mails a 6-digit signup code to the given address.
func (h *Handler) SendCaptcha(c *gin.Context) {
	var req sendCaptchaReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "invalid request")
		return
	}

	code, err := randomDigits(6)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to generate code")
		return
	}
	if err := h.Redis.SetCaptcha(c.Request.Context(), req.Email, code); err != nil {
		h.Log.Error("store captcha", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to store code")
		return
	}

	body := fmt.Sprintf("인증 코드: %s\n\n10분 안에 입력해주세요.", code)
	if err := email.SendText(h.SMTP, req.Email, "회원가입 인증 코드", body); err != nil {
		h.Log.Error("send captcha mail", zap.Error(err), zap.String("email", req.Email))
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to send email")
		return
	}

	common.OK(c, nil)
}

type createUserReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Captcha  string `json:"captcha" binding:"required"`
}

// CreateUser registers an account after verifying the mailed code.
func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "invalid request")
		return
	}

	stored, err := h.Redis.GetCaptcha(c.Request.Context(), req.Email)
	if err != nil || stored == "" || stored != req.Captcha {
		common.Fail(c, http.StatusBadRequest, 40002, "invalid captcha")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to create user")
		return
	}

	username, err := randomUsername()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to create user")
		return
	}

	user := models.User{
		Email:        req.Email,
		Username:     username,
		PasswordHash: hash,
	}
	if err := h.DB.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		common.Fail(c, http.StatusConflict, 40901, "email already registered")
		return
	}

	_ = h.Redis.DeleteCaptcha(c.Request.Context(), req.Email)

	// Welcome mail must not delay the signup response.
	go func(to, name string) {
		body := fmt.Sprintf("%s님, 가입을 환영합니다!", name)
		if err := email.SendText(h.SMTP, to, "환영합니다", body); err != nil {
			h.Log.Warn("send welcome mail", zap.Error(err))
		}
	}(user.Email, user.Username)

	common.OK(c, gin.H{
		"id":       user.ID,
		"email":    user.Email,
		"username": user.Username,
	})
}

type loginReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "invalid request")
		return
	}

	var user models.User
	err := h.DB.WithContext(c.Request.Context()).
		First(&user, "email = ?", req.Email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !auth.CheckPassword(user.PasswordHash, req.Password)) {
		common.Fail(c, http.StatusUnauthorized, 40103, "wrong email or password")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50005, "login failed")
		return
	}

	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, tokenTTL)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50005, "login failed")
		return
	}

	common.OK(c, gin.H{
		"token": token,
		"user": gin.H{
			"id":       user.ID,
			"email":    user.Email,
			"username": user.Username,
		},
	})
}

func (h *Handler) Me(c *gin.Context) {
	var user models.User
	err := h.DB.WithContext(c.Request.Context()).
		First(&user, "id = ?", userID(c)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		common.Fail(c, http.StatusNotFound, 40401, "user not found")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50006, "failed to load user")
		return
	}
	common.OK(c, user)
}

func randomDigits(n int) (string, error) {
	buf := make([]byte, n)
	for i := range buf {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		buf[i] = byte('0' + v.Int64())
	}
	return string(buf), nil
}

const usernameAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomUsername() (string, error) {
	buf := make([]byte, 11)
	for i := range buf {
		v, err := rand.Int(rand.Reader, big.NewInt(int64(len(usernameAlphabet))))
		if err != nil {
			return "", err
		}
		buf[i] = usernameAlphabet[v.Int64()]
	}
	return "user_" + string(buf), nil
}
