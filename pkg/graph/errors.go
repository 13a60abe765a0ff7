// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package graph

import "fmt"

// ConnectionError wraps a failure to open or reach the underlying database.
type ConnectionError struct{ Err error }

func (e *ConnectionError) Error() string { return fmt.Sprintf("graph connection error: %v", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// SchemaError signals an unknown node kind or a conflicting duplicate-id
// write (same id, different properties).
type SchemaError struct{ Message string }

func (e *SchemaError) Error() string { return "schema error: " + e.Message }

// IntegrityError signals an edge create whose endpoint node does not exist.
type IntegrityError struct{ Message string }

func (e *IntegrityError) Error() string { return "integrity error: " + e.Message }
