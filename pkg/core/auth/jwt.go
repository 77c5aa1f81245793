/*
 * Copyright 2026 The FleetGlass Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/fleetglass/fleetglass/pkg/models"
)

var errSecretRequired = errors.New("jwt secret is required")

type Claims struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTService is the HS256 AuthService implementation.
type JWTService struct {
	secret     []byte
	expiration time.Duration
}

// NewJWTService builds the service from auth config. Validate has already
// defaulted the expiration.
func NewJWTService(cfg *models.AuthConfig) (*JWTService, error) {
	if cfg == nil || cfg.JWTSecret == "" {
		return nil, errSecretRequired
	}

	return &JWTService{
		secret:     []byte(cfg.JWTSecret),
		expiration: time.Duration(cfg.JWTExpiration),
	}, nil
}

// GenerateToken mints a signed token for an admin identity.
func (s *JWTService) GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		Roles:  user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(s.secret)
}

// VerifyToken validates signature and expiry and returns the embedded
// identity.
func (s *JWTService) VerifyToken(_ context.Context, tokenString string) (*models.User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}

	return &models.User{
		ID:    claims.UserID,
		Email: claims.Email,
		Roles: claims.Roles,
	}, nil
}
