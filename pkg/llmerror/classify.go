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

// Package llmerror decides whether an error raised by a model call is an
// LLM transport failure and renders a safe message for it.
package llmerror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"time"

	"github.com/kadirpekel/mcphost/pkg/httpclient"
)

// Reason is the coarse cause of a transport failure.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonRateLimit      Reason = "rate_limit"
	ReasonBilling        Reason = "billing"
	ReasonAuth           Reason = "auth"
	ReasonGatewayTimeout Reason = "gateway_timeout"
	ReasonUnavailable    Reason = "unavailable"
	ReasonModelNotFound  Reason = "model_not_found"
	ReasonProvider       Reason = "provider"
)

// Info is derived from a caught error and never stored.
type Info struct {
	IsLLMTransport bool
	IsRateLimit    bool
	Status         int
	RetryAfter     time.Duration
	Reason         Reason
	Message        string
}

// StatusCoder is satisfied by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

var (
	gatewayPattern     = regexp.MustCompile(`(?i)504\s+gateway\s+time[- ]?out|<title>\s*504\s+gateway`)
	rateLimitPattern   = regexp.MustCompile(`(?i)\brate[- ]?limit|\btoo many requests\b|retry-after|resource[_ ]exhausted`)
	unavailablePattern = regexp.MustCompile(`(?i)bad gateway|service unavailable|overloaded`)
	billingPattern     = regexp.MustCompile(`(?i)insufficient[_ ]quota|billing|credit balance|out of credits|payment required|exceeded your current quota`)
	authPattern        = regexp.MustCompile(`(?i)invalid[_ ]api[_ ]key|unauthori[sz]ed|authentication|permission denied|forbidden|incorrect api key`)
	modelPattern       = regexp.MustCompile(`(?i)model[_ ]not[_ ]found|no such model|model .*(does not exist|not found|unavailable)|unknown model`)
	providerPattern    = regexp.MustCompile(`(?i)openai|anthropic|openrouter|vertex|gemini|model api|\bllm\b`)
)

// Classify inspects err. The zero Info is returned for nil.
func Classify(err error) Info {
	if err == nil {
		return Info{}
	}

	info := Info{Message: err.Error()}
	text := err.Error()

	var apiErr *httpclient.APIError
	var retryErr *httpclient.RetryableError
	var coder StatusCoder
	var netErr net.Error

	switch {
	case errors.As(err, &apiErr):
		info.Status = apiErr.StatusCode
		info.RetryAfter = apiErr.RetryAfter
		text += "\n" + apiErr.Body
	case errors.As(err, &retryErr):
		info.Status = retryErr.StatusCode
		info.RetryAfter = retryErr.RetryAfter
	case errors.As(err, &coder):
		info.Status = coder.StatusCode()
	}

	if info.Status == 0 {
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			info.Status = 504
		}
	}

	status := info.Status
	info.IsRateLimit = status == 429 || rateLimitPattern.MatchString(text)

	switch {
	case status == 401 || status == 403:
		info.Reason = ReasonAuth
	case status == 402:
		info.Reason = ReasonBilling
	case status == 429:
		info.Reason = ReasonRateLimit
		if billingPattern.MatchString(text) {
			info.Reason = ReasonBilling
		}
	case status == 504:
		info.Reason = ReasonGatewayTimeout
	case status == 502 || status == 503 || status == 529:
		info.Reason = ReasonUnavailable
	case status == 404 && apiErr != nil:
		info.Reason = ReasonModelNotFound
	case authPattern.MatchString(text):
		info.Reason = ReasonAuth
	case billingPattern.MatchString(text):
		info.Reason = ReasonBilling
	case info.IsRateLimit:
		info.Reason = ReasonRateLimit
	case gatewayPattern.MatchString(text):
		info.Reason = ReasonGatewayTimeout
	case unavailablePattern.MatchString(text):
		info.Reason = ReasonUnavailable
	case modelPattern.MatchString(text):
		info.Reason = ReasonModelNotFound
	case apiErr != nil || providerPattern.MatchString(text):
		info.Reason = ReasonProvider
	}

	info.IsLLMTransport = info.Reason != ReasonNone || info.IsRateLimit
	return info
}

// FriendlyMessage renders info as a short sentence that never echoes the
// provider's raw error text.
func FriendlyMessage(info Info) string {
	var msg string
	switch info.Reason {
	case ReasonRateLimit:
		msg = "The language model is receiving too many requests right now."
	case ReasonBilling:
		msg = "The language model provider rejected the request because the account is out of credits."
	case ReasonAuth:
		msg = "The language model provider rejected our credentials. Please contact the operator."
	case ReasonGatewayTimeout:
		msg = "The language model took too long to respond."
	case ReasonUnavailable:
		msg = "The language model service is temporarily unavailable."
	case ReasonModelNotFound:
		msg = "The selected model is not available. Please choose a different model."
	default:
		msg = "The language model could not complete the request."
	}

	switch {
	case info.RetryAfter > 0 && info.Reason != ReasonAuth && info.Reason != ReasonModelNotFound:
		secs := int(info.RetryAfter.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		return fmt.Sprintf("%s Please try again in %d %s.", msg, secs, plural(secs, "second"))
	case info.Reason == ReasonAuth || info.Reason == ReasonModelNotFound || info.Reason == ReasonBilling:
		return msg
	default:
		return msg + " Please try again shortly."
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
