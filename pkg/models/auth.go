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

package models

// User is the verified principal behind an admin session. Populated by the
// auth collaborator; the relay treats it as opaque identity.
type User struct {
	ID    string   `json:"id"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// ErrorResponse is the JSON body for REST error statuses.
type ErrorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}
