/*
Copyright 2026 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package dial

import (
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindTransport         ErrorKind = "TRANSPORT_ERROR"    // nothing reached the provider
	KindProvider          ErrorKind = "PROVIDER_ERROR"     // provider answered with a non-success status
	KindMalformedResponse ErrorKind = "MALFORMED_RESPONSE" // success status, unexpected body
	KindCatalog           ErrorKind = "CATALOG_ERROR"      // model listing failed or was malformed
)

// ClientError is the failure value returned by every Client operation.
type ClientError struct {
	Kind       ErrorKind
	HTTPStatus int  // set for provider and catalog failures that carried a status
	Timeout    bool // transport failure caused by a deadline
	Message    string
	RawError   error // original error
}

func (e *ClientError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ClientError) Unwrap() error {
	return e.RawError
}

// IsRetryable reports whether a caller may reasonably retry the call.
// The client itself never retries.
func (e *ClientError) IsRetryable() bool {
	switch e.Kind {
	case KindTransport:
		return true
	case KindProvider:
		return e.HTTPStatus == http.StatusTooManyRequests || e.HTTPStatus >= 500
	default:
		return false
	}
}
