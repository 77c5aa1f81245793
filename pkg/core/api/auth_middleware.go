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

package api

import (
	"net/http"
	"strings"
)

// bearerAuthMiddleware guards the admin REST surface. The token comes from
// the Authorization header, or the access_token query parameter for
// clients that cannot set headers (image tags pulling camera frames).
func (s *APIServer) bearerAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authService == nil {
			writeError(w, "Authentication is not configured", http.StatusUnauthorized)
			return
		}

		token := bearerToken(r)
		if token == "" {
			writeError(w, "Authorization required", http.StatusUnauthorized)
			return
		}

		user, err := s.authService.VerifyToken(r.Context(), token)
		if err != nil {
			s.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("Token verification failed")
			writeError(w, "Invalid token", http.StatusUnauthorized)

			return
		}

		s.logger.Debug().Str("user_id", user.ID).Str("path", r.URL.Path).Msg("Admin request authorized")
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}

	return r.URL.Query().Get("access_token")
}
