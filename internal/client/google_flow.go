package client

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"rentwheels/internal/apierr"
)

const defaultConsentTimeout = 3 * time.Minute

// GoogleFlow obtains a Google ID token through the installed-app flow: it
// listens on a loopback port, sends the user to the consent page and exchanges
// the returned code with PKCE.
type GoogleFlow struct {
	config  oauth2.Config
	open    func(authURL string) error
	timeout time.Duration
	logger  *slog.Logger
}

// GoogleFlowOption configures a GoogleFlow.
type GoogleFlowOption func(*GoogleFlow)

// WithEndpoint overrides the Google OAuth endpoint.
func WithEndpoint(endpoint oauth2.Endpoint) GoogleFlowOption {
	return func(f *GoogleFlow) {
		f.config.Endpoint = endpoint
	}
}

// WithBrowser sets how the consent URL is presented to the user.
func WithBrowser(open func(authURL string) error) GoogleFlowOption {
	return func(f *GoogleFlow) {
		if open != nil {
			f.open = open
		}
	}
}

// WithConsentTimeout bounds how long the flow waits for the redirect.
func WithConsentTimeout(timeout time.Duration) GoogleFlowOption {
	return func(f *GoogleFlow) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// WithFlowLogger sets the logger used by the loopback callback server.
func WithFlowLogger(logger *slog.Logger) GoogleFlowOption {
	return func(f *GoogleFlow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewGoogleFlow creates a flow for the given OAuth client.
func NewGoogleFlow(clientID, clientSecret string, opts ...GoogleFlowOption) *GoogleFlow {
	f := &GoogleFlow{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		open: func(authURL string) error {
			fmt.Printf("Open this URL in your browser to continue:\n\n  %s\n\n", authURL)
			return nil
		},
		timeout: defaultConsentTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type callbackResult struct {
	code string
	err  error
}

// IDToken runs the consent flow and returns the raw ID token. A denied consent,
// a timeout or a cancelled ctx yields apierr.ErrUserCancelled.
func (f *GoogleFlow) IDToken(ctx context.Context) (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("%w: listen for redirect: %w", apierr.ErrProvider, err)
	}

	config := f.config
	config.RedirectURL = fmt.Sprintf("http://%s/callback", listener.Addr().String())

	state, err := randomState()
	if err != nil {
		_ = listener.Close()
		return "", err
	}
	verifier := oauth2.GenerateVerifier()

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		result := callbackResult{}
		switch {
		case subtle.ConstantTimeCompare([]byte(query.Get("state")), []byte(state)) != 1:
			result.err = fmt.Errorf("%w: state mismatch", apierr.ErrProvider)
		case query.Get("error") == "access_denied":
			result.err = apierr.ErrUserCancelled
		case query.Get("error") != "":
			result.err = fmt.Errorf("%w: %s", apierr.ErrProvider, query.Get("error"))
		case query.Get("code") == "":
			result.err = fmt.Errorf("%w: missing authorization code", apierr.ErrProvider)
		default:
			result.code = query.Get("code")
		}

		if result.err != nil {
			http.Error(w, "Sign-in did not complete. You can close this window.", http.StatusBadRequest)
		} else {
			_, _ = fmt.Fprintln(w, "Signed in. You can close this window.")
		}
		select {
		case results <- result:
		default:
		}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.logger.Warn("oauth redirect listener stopped", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))
	if err := f.open(authURL); err != nil {
		return "", fmt.Errorf("%w: open consent page: %w", apierr.ErrProvider, err)
	}

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()

	var result callbackResult
	select {
	case <-ctx.Done():
		return "", apierr.ErrUserCancelled
	case <-timer.C:
		return "", apierr.ErrUserCancelled
	case result = <-results:
	}
	if result.err != nil {
		return "", result.err
	}

	token, err := config.Exchange(ctx, result.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return "", fmt.Errorf("%w: exchange code: %w", apierr.ErrProvider, err)
	}
	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return "", fmt.Errorf("%w: token response has no id_token", apierr.ErrProvider)
	}
	return idToken, nil
}

func randomState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
