package server

import (
	"errors"
	"net/http"

	notevault "github.com/MrEthical07/notevault"
	"github.com/MrEthical07/notevault/middleware"
	"github.com/labstack/echo/v4"
)

type signupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,strongpassword"`
}

type verifyMFARequest struct {
	Token   string `json:"token" validate:"required"`
	MFACode string `json:"mfaCode" validate:"required,mfacode"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	MFACode  string `json:"mfaCode" validate:"omitempty,mfacode"`
}

type loginMFARequest struct {
	Token   string `json:"token" validate:"required"`
	MFACode string `json:"mfaCode" validate:"required,mfacode"`
}

type backupCodeRequest struct {
	Token string `json:"token" validate:"required"`
	Code  string `json:"code" validate:"required,max=32"`
}

type encryptionSaltRequest struct {
	Salt string `json:"salt" validate:"required,base64"`
}

func (s *Server) bindAuth(g *echo.Group) {
	g.POST("/signup", s.signup)
	g.POST("/verify-mfa", s.verifyMFA)
	g.POST("/login", s.login)
	g.POST("/login/mfa", s.loginMFA)
	g.POST("/login/backup-code", s.loginBackupCode)
	g.POST("/refresh", s.refresh)
	g.POST("/logout", s.logout)
	g.GET("/me", s.me, s.requireAuth())
	g.PUT("/encryption-salt", s.setEncryptionSalt, s.requireAuth())
}

// bind decodes the JSON body into req and validates it.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	return c.Validate(req)
}

func (s *Server) signup(c echo.Context) error {
	var req signupRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := s.engine.Signup(c.Request().Context(), notevault.SignupRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message":   "User created successfully",
		"tempToken": res.TempToken,
		"qrCode":    res.QRCode,
		"secret":    res.Secret,
	})
}

func (s *Server) verifyMFA(c echo.Context) error {
	var req verifyMFARequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := s.engine.VerifyMFA(c.Request().Context(), req.Token, req.MFACode)
	if err != nil {
		switch {
		case notevault.TokenErrorReason(err) != "":
			return withStatus(http.StatusBadRequest, "Invalid or expired token", err)
		case errors.Is(err, notevault.ErrInvalidMFACode):
			return withStatus(http.StatusBadRequest, "Invalid MFA code", err)
		}
		return err
	}

	middleware.SetSessionCookies(c.Response(), res.Tokens, s.cookies, s.now())
	return c.JSON(http.StatusOK, echo.Map{
		"message":     "MFA verification successful",
		"user":        res.User.Safe(),
		"backupCodes": res.BackupCodes,
	})
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := s.engine.Login(c.Request().Context(), req.Email, req.Password, req.MFACode)
	if err != nil {
		return err
	}
	return s.loginResponse(c, res)
}

func (s *Server) loginMFA(c echo.Context) error {
	var req loginMFARequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := s.engine.CompleteLoginMFA(c.Request().Context(), req.Token, req.MFACode)
	if err != nil {
		return err
	}
	return s.loginResponse(c, res)
}

func (s *Server) loginBackupCode(c echo.Context) error {
	var req backupCodeRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := s.engine.LoginWithBackupCode(c.Request().Context(), req.Token, req.Code)
	if err != nil {
		return err
	}
	return s.loginResponse(c, res)
}

func (s *Server) loginResponse(c echo.Context, res *notevault.LoginResult) error {
	if res.MFARequired {
		return c.JSON(http.StatusOK, echo.Map{
			"requiresMFA": true,
			"tempToken":   res.TempToken,
			"message":     "MFA code required",
		})
	}

	middleware.SetSessionCookies(c.Response(), res.Tokens, s.cookies, s.now())
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Login successful",
		"user":    res.User.Safe(),
	})
}

func (s *Server) refresh(c echo.Context) error {
	res, err := s.engine.Refresh(c.Request().Context(), middleware.RefreshToken(c.Request()))
	if err != nil {
		middleware.ClearSessionCookies(c.Response(), s.cookies)
		switch {
		case errors.Is(err, notevault.ErrTokenMissing):
			return withStatus(http.StatusUnauthorized, "Refresh token required", err)
		case errors.Is(err, notevault.ErrTokenExpired):
			return withStatus(http.StatusUnauthorized, "Refresh token expired", err)
		case notevault.TokenErrorReason(err) != "":
			return withStatus(http.StatusUnauthorized, "Invalid refresh token", err)
		case errors.Is(err, notevault.ErrUserNotFound):
			return withStatus(http.StatusUnauthorized, "User not found", err)
		}
		return err
	}

	middleware.SetSessionCookies(c.Response(), res.Tokens, s.cookies, s.now())
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Token refreshed successfully",
		"user":    res.User.Safe(),
	})
}

func (s *Server) me(c echo.Context) error {
	user, err := s.engine.Me(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"user": user.Safe()})
}

func (s *Server) setEncryptionSalt(c echo.Context) error {
	var req encryptionSaltRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, err := s.engine.SetEncryptionSalt(c.Request().Context(), userID(c), req.Salt)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"user": user.Safe()})
}

// logout always succeeds. Whatever tokens were presented are handed to the
// engine for audit and the cookies are cleared.
func (s *Server) logout(c echo.Context) error {
	s.engine.Logout(c.Request().Context(), middleware.AccessToken(c.Request()), middleware.RefreshToken(c.Request()))
	middleware.ClearSessionCookies(c.Response(), s.cookies)
	return c.JSON(http.StatusOK, echo.Map{"message": "Logout successful"})
}
