// Copyright 2025 Kadir Pekel
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

package llmerror

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kadirpekel/mcphost/pkg/httpclient"
)

type statusErr struct{ code int }

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) StatusCode() int { return e.code }

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantTransport bool
		wantRateLimit bool
		wantReason    Reason
		wantStatus    int
	}{
		{
			name:          "api_429",
			err:           &httpclient.APIError{Provider: "openai", StatusCode: 429, Body: "{}"},
			wantTransport: true, wantRateLimit: true, wantReason: ReasonRateLimit, wantStatus: 429,
		},
		{
			name:          "rate_limit_text",
			err:           errors.New("Rate limit exceeded for this key"),
			wantTransport: true, wantRateLimit: true, wantReason: ReasonRateLimit,
		},
		{
			name:          "too_many_requests_text",
			err:           errors.New("upstream said: Too Many Requests"),
			wantTransport: true, wantRateLimit: true, wantReason: ReasonRateLimit,
		},
		{
			name:          "quota_429_is_billing_but_rate_limited",
			err:           &httpclient.APIError{Provider: "openai", StatusCode: 429, Message: "insufficient_quota: You exceeded your current quota"},
			wantTransport: true, wantRateLimit: true, wantReason: ReasonBilling, wantStatus: 429,
		},
		{
			name:          "auth_401",
			err:           &httpclient.APIError{Provider: "anthropic", StatusCode: 401},
			wantTransport: true, wantReason: ReasonAuth, wantStatus: 401,
		},
		{
			name:          "auth_403_status_coder",
			err:           fmt.Errorf("wrapped: %w", statusErr{403}),
			wantTransport: true, wantReason: ReasonAuth, wantStatus: 403,
		},
		{
			name:          "auth_text",
			err:           errors.New("invalid x-api-key: authentication_error"),
			wantTransport: true, wantReason: ReasonAuth,
		},
		{
			name:          "gateway_html",
			err:           errors.New("<html><title>504 Gateway Time-out</title></html>"),
			wantTransport: true, wantReason: ReasonGatewayTimeout,
		},
		{
			name:          "deadline_counts_as_504",
			err:           fmt.Errorf("post: %w", context.DeadlineExceeded),
			wantTransport: true, wantReason: ReasonGatewayTimeout, wantStatus: 504,
		},
		{
			name:          "service_unavailable",
			err:           &httpclient.APIError{Provider: "openrouter", StatusCode: 503},
			wantTransport: true, wantReason: ReasonUnavailable, wantStatus: 503,
		},
		{
			name:          "bad_gateway_text",
			err:           errors.New("Bad Gateway"),
			wantTransport: true, wantReason: ReasonUnavailable,
		},
		{
			name:          "model_not_found_404",
			err:           &httpclient.APIError{Provider: "openai", StatusCode: 404, Message: "The model `gpt-9` does not exist"},
			wantTransport: true, wantReason: ReasonModelNotFound, wantStatus: 404,
		},
		{
			name:          "provider_hint",
			err:           errors.New("anthropic: connection reset by peer"),
			wantTransport: true, wantReason: ReasonProvider,
		},
		{
			name: "unrelated",
			err:  errors.New("json: cannot unmarshal string"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Classify(tt.err)
			assert.Equal(t, tt.wantTransport, info.IsLLMTransport)
			assert.Equal(t, tt.wantRateLimit, info.IsRateLimit)
			assert.Equal(t, tt.wantReason, info.Reason)
			assert.Equal(t, tt.wantStatus, info.Status)
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	assert.Equal(t, Info{}, Classify(nil))
}

func TestClassify_RetryAfter(t *testing.T) {
	info := Classify(&httpclient.APIError{Provider: "openai", StatusCode: 429, RetryAfter: 20 * time.Second})
	assert.Equal(t, 20*time.Second, info.RetryAfter)

	info = Classify(&httpclient.RetryableError{StatusCode: 503, RetryAfter: 3 * time.Second})
	assert.Equal(t, ReasonUnavailable, info.Reason)
	assert.Equal(t, 3*time.Second, info.RetryAfter)
}

func TestFriendlyMessage(t *testing.T) {
	assert.Equal(t,
		"The language model is receiving too many requests right now. Please try again in 20 seconds.",
		FriendlyMessage(Info{Reason: ReasonRateLimit, RetryAfter: 20 * time.Second}))
	assert.Equal(t,
		"The language model is receiving too many requests right now. Please try again in 1 second.",
		FriendlyMessage(Info{Reason: ReasonRateLimit, RetryAfter: 300 * time.Millisecond}))
	assert.Equal(t,
		"The language model took too long to respond. Please try again shortly.",
		FriendlyMessage(Info{Reason: ReasonGatewayTimeout}))
	assert.Equal(t,
		"The language model provider rejected our credentials. Please contact the operator.",
		FriendlyMessage(Info{Reason: ReasonAuth, RetryAfter: time.Minute}))

	raw := "sk-live-secret leaked in provider error"
	assert.NotContains(t, FriendlyMessage(Info{Reason: ReasonProvider, Message: raw}), raw)
}
