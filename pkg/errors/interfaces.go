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

package errors

// UserVisibleError is implemented by errors that carry a hint for the person
// at the terminal. The CLI prints the suggestion below the error message.
type UserVisibleError interface {
	error
	IsUserVisible() bool
	UserMessage() string
	Suggestion() string
}

// ErrorClassifier lets retry and reporting code branch on an error's
// category without type switches.
type ErrorClassifier interface {
	error

	// ErrorType is a short category such as "timeout" or "recursion".
	ErrorType() string

	IsRetryable() bool
}
