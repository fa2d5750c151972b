package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"nestlist/internal/config"
	"nestlist/internal/logger"
)

// IVerifier defines the interface for verifying CAPTCHA tokens.
type IVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// SiteVerifyResponse is the expected structure from the siteverify endpoint.
type SiteVerifyResponse struct {
	Success     bool     `json:"success"`
	ErrorCodes  []string `json:"error-codes"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
}

// recaptchaVerifier implements IVerifier against Google reCAPTCHA.
type recaptchaVerifier struct {
	cfg        *config.Config
	httpClient *http.Client
}

// NewRecaptchaVerifier creates a new reCAPTCHA verifier.
func NewRecaptchaVerifier(cfg *config.Config) IVerifier {
	return &recaptchaVerifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Verify calls the siteverify endpoint. When no secret key is configured the
// check is skipped so local development works without a CAPTCHA account.
func (v *recaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if v.cfg.RecaptchaSecretKey == "" {
		logger.L().Warn("reCAPTCHA secret key not configured, skipping verification")
		return true, nil
	}
	if token == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", v.cfg.RecaptchaSecretKey)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.RecaptchaSiteVerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to create siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to contact captcha service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read siteverify response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("captcha verification failed with status %d", resp.StatusCode)
	}

	var svResp SiteVerifyResponse
	if err := json.Unmarshal(body, &svResp); err != nil {
		return false, fmt.Errorf("failed to parse siteverify response: %w", err)
	}

	if !svResp.Success {
		logger.L().Info("captcha verification unsuccessful", zap.Strings("error_codes", svResp.ErrorCodes))
	}

	return svResp.Success, nil
}
