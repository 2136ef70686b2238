/*
 * Copyright 2024 The Ember Authors. All rights reserved.
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

package errors

// StatusCode represents the error codes used throughout the client core.
// The numbering follows the canonical RPC codes so that rejections plumbed
// through the write stream keep their original classification.
type StatusCode int

const (
	// ErrCodeInvalidArgument indicates that the caller specified an invalid argument.
	// This indicates arguments that are problematic regardless of the state of the system.
	ErrCodeInvalidArgument StatusCode = 3

	// ErrCodeNotFound indicates that some requested entity was not found.
	ErrCodeNotFound StatusCode = 5

	// ErrCodeFailedPrecondition indicates that the operation was rejected because
	// the system is not in a state required for the operation's execution.
	ErrCodeFailedPrecondition StatusCode = 9

	// ErrCodeAborted indicates that the operation was aborted, typically due to
	// a concurrency conflict.
	ErrCodeAborted StatusCode = 10

	// ErrCodeInternal indicates that some invariants expected by the underlying
	// system have been broken. This error code is reserved for serious errors.
	ErrCodeInternal StatusCode = 13

	// ErrCodeUnavailable indicates that the service is currently unavailable.
	// This is usually temporary, so callers can back off and retry.
	ErrCodeUnavailable StatusCode = 14
)

// String returns the string representation of the status code.
func (c StatusCode) String() string {
	switch c {
	case ErrCodeInvalidArgument:
		return "InvalidArgument"
	case ErrCodeNotFound:
		return "NotFound"
	case ErrCodeFailedPrecondition:
		return "FailedPrecondition"
	case ErrCodeAborted:
		return "Aborted"
	case ErrCodeInternal:
		return "Internal"
	case ErrCodeUnavailable:
		return "Unavailable"
	default:
		return "Unknown"
	}
}
