package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notely/internal/services"
	"github.com/charlesng35/notely/pkg/response"
)

// AuthHandler exposes the email one-time-code flows.
type AuthHandler struct {
	flow *services.AuthFlowService
}

func NewAuthHandler(flow *services.AuthFlowService) *AuthHandler {
	return &AuthHandler{flow: flow}
}

type signupRequest struct {
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"required"`
	DateOfBirth string `json:"date_of_birth" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required"`
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required"`
	OTP   string `json:"otp" validate:"required"`
}

// POST /api/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if !bindAndValidate(c, &req) {
		return
	}

	email, err := h.flow.Signup(requestContext(c), services.SignupInput{
		Name:        req.Name,
		Email:       req.Email,
		DateOfBirth: req.DateOfBirth,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "OTP sent to your email address",
		"email":   email,
	})
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	email, err := h.flow.Login(requestContext(c), req.Email)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "OTP sent to your email address",
		"email":   email,
	})
}

// POST /api/auth/verify-otp
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.flow.VerifyOTP(requestContext(c), req.Email, req.OTP)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "OTP verified successfully",
		"token":   result.Token,
		"user":    result.User,
	})
}

// POST /api/auth/resend-otp
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.flow.ResendOTP(requestContext(c), req.Email); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "New OTP sent to your email address"})
}
