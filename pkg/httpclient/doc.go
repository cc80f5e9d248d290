// Copyright 2025 Tom Barlow
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

// Package httpclient builds the HTTP client used by the net actions.
//
// The client stacks two transports over a pooled http.Transport:
//   - a logging transport that sets the User-Agent, propagates the trace
//     context of the calling step and logs every request with a sanitized URL
//   - a retry transport with exponential backoff and jitter for idempotent
//     requests that fail with a transient error, 408, 429 or 5xx
//
// Step-level retries configured on a program apply on top of these.
package httpclient
