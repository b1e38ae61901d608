// Package captcha verifies reCAPTCHA responses against Google's siteverify
// endpoint before the login handshake runs.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Verifier checks a captcha response token submitted with a login request.
type Verifier interface {
	Verify(ctx context.Context, response, remoteIP string) error
}

// ErrCaptchaFailed is returned when the captcha provider rejects a response.
var ErrCaptchaFailed = fmt.Errorf("captcha verification failed")

// RecaptchaVerifier talks to the Google reCAPTCHA siteverify API.
type RecaptchaVerifier struct {
	secretKey string
	verifyURL string
	client    *http.Client
	logger    *slog.Logger
}

func NewRecaptchaVerifier(secretKey, verifyURL string, logger *slog.Logger) *RecaptchaVerifier {
	return &RecaptchaVerifier{
		secretKey: secretKey,
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: 5 * time.Second},
		logger:    logger,
	}
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

func (v *RecaptchaVerifier) Verify(ctx context.Context, response, remoteIP string) error {
	if strings.TrimSpace(response) == "" {
		return ErrCaptchaFailed
	}

	form := url.Values{}
	form.Set("secret", v.secretKey)
	form.Set("response", response)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("siteverify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("siteverify returned status %d", resp.StatusCode)
	}

	var result siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode siteverify response: %w", err)
	}

	if !result.Success {
		v.logger.Info("captcha rejected", slog.Any("error_codes", result.ErrorCodes))
		return ErrCaptchaFailed
	}
	return nil
}

// NoopVerifier accepts every response. Used when captcha is disabled.
type NoopVerifier struct{}

func (NoopVerifier) Verify(ctx context.Context, response, remoteIP string) error {
	return nil
}
