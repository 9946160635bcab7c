// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package session

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/go-social-auth/internal/config"
	"github.com/gorilla/securecookie"
)

const keyLength = 32

// Cookies emits and reads the session cookie that carries the access token
// for browser clients.
type Cookies struct {
	codec  *securecookie.SecureCookie
	name   string
	maxAge int
	secure bool
}

// NewCookies creates the cookie emitter. An empty hash key is replaced by a
// random one, so cookies do not survive a restart.
func NewCookies(cfg *config.SessionConfig, secure bool) (*Cookies, error) {
	hashKey, err := decodeKey(cfg.HashKey, "hash")
	if err != nil {
		return nil, err
	}
	if hashKey == nil {
		slog.Warn("session_hash_key_generated", "reason", "no session hash key configured")
		hashKey = securecookie.GenerateRandomKey(keyLength)
		if hashKey == nil {
			return nil, errors.New("failed to generate session hash key")
		}
	}

	blockKey, err := decodeKey(cfg.BlockKey, "block")
	if err != nil {
		return nil, err
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(cfg.MaxAge)
	codec.SetSerializer(securecookie.JSONEncoder{})

	return &Cookies{
		codec:  codec,
		name:   cfg.CookieName,
		maxAge: cfg.MaxAge,
		secure: secure,
	}, nil
}

func decodeKey(value, kind string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid session %s key: %w", kind, err)
	}
	if len(key) != keyLength {
		return nil, fmt.Errorf("invalid session %s key: must be %d bytes, got %d", kind, keyLength, len(key))
	}
	return key, nil
}

// Create returns a cookie carrying accessToken.
func (c *Cookies) Create(accessToken string) (*http.Cookie, error) {
	value, err := c.codec.Encode(c.name, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session cookie: %w", err)
	}
	return c.cookie(value, c.maxAge), nil
}

// Read returns the access token from the request's session cookie. Missing,
// tampered and expired cookies yield false.
func (c *Cookies) Read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(c.name)
	if err != nil {
		return "", false
	}
	var accessToken string
	if err := c.codec.Decode(c.name, cookie.Value, &accessToken); err != nil {
		return "", false
	}
	return accessToken, accessToken != ""
}

// Clear returns a cookie that removes the session cookie.
func (c *Cookies) Clear() *http.Cookie {
	return c.cookie("", -1)
}

func (c *Cookies) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
