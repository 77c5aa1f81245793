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

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/fleetglass/fleetglass/pkg/logger"
)

var (
	// ErrDstMustBeNonNilPointer indicates that the destination must be a non-nil pointer.
	ErrDstMustBeNonNilPointer = errors.New("dst must be a non-nil pointer")
	// ErrDstMustBePointerToStruct indicates that the destination must be a pointer to a struct.
	ErrDstMustBePointerToStruct = errors.New("dst must be a pointer to a struct")
)

// EnvConfigLoader loads configuration from environment variables. Nested
// struct fields map through underscore separation of their JSON tags, so
// FLEETGLASS_AUTH_JWT_SECRET maps to config.Auth.JWTSecret.
type EnvConfigLoader struct {
	logger logger.Logger
	prefix string
}

// NewEnvConfigLoader creates a new environment variable config loader.
func NewEnvConfigLoader(log logger.Logger, prefix string) *EnvConfigLoader {
	return &EnvConfigLoader{
		logger: log,
		prefix: prefix,
	}
}

// Load implements ConfigLoader by reading from environment variables.
func (e *EnvConfigLoader) Load(_ context.Context, _ string, dst interface{}) error {
	// A complete JSON config in a single env var takes precedence.
	if jsonConfig := os.Getenv(e.prefix + "CONFIG_JSON"); jsonConfig != "" {
		if err := json.Unmarshal([]byte(jsonConfig), dst); err != nil {
			return fmt.Errorf("failed to unmarshal %sCONFIG_JSON: %w", e.prefix, err)
		}

		return nil
	}

	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrDstMustBeNonNilPointer
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return ErrDstMustBePointerToStruct
	}

	if err := e.loadStruct(v, e.prefix); err != nil {
		return err
	}

	if e.logger != nil {
		e.logger.Debug().Str("prefix", e.prefix).Msg("Loaded configuration from environment variables")
	}

	return nil
}

// loadStruct recursively loads a struct from environment variables.
func (e *EnvConfigLoader) loadStruct(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		jsonTag := fieldType.Tag.Get("json")
		if jsonTag == "" || jsonTag == "-" {
			continue
		}

		name := strings.Split(jsonTag, ",")[0]
		envKey := prefix + strings.ToUpper(name)

		if field.Kind() == reflect.Struct {
			if err := e.loadStruct(field, envKey+"_"); err != nil {
				return err
			}

			continue
		}

		raw, ok := os.LookupEnv(envKey)
		if !ok {
			continue
		}

		if err := setField(field, raw); err != nil {
			return fmt.Errorf("failed to parse %s: %w", envKey, err)
		}
	}

	return nil
}

// setField parses raw into a single settable struct field.
func setField(field reflect.Value, raw string) error {
	// Types with custom JSON unmarshaling (Duration, pointers, slices) go
	// through the JSON path so one representation works everywhere.
	if field.Kind() == reflect.Slice || field.Kind() == reflect.Ptr ||
		field.CanAddr() && hasJSONUnmarshaler(field) {
		return unmarshalViaJSON(field, raw)
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}

		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}

		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}

		field.SetFloat(f)
	default:
		return unmarshalViaJSON(field, raw)
	}

	return nil
}

func hasJSONUnmarshaler(field reflect.Value) bool {
	_, ok := field.Addr().Interface().(json.Unmarshaler)
	return ok
}

func unmarshalViaJSON(field reflect.Value, raw string) error {
	data := []byte(raw)

	// Bare strings need quoting before they are valid JSON.
	if !json.Valid(data) {
		quoted, err := json.Marshal(raw)
		if err != nil {
			return err
		}

		data = quoted
	}

	return json.Unmarshal(data, field.Addr().Interface())
}
