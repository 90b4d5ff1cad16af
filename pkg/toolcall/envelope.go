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

package toolcall

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/kadirpekel/mcphost/pkg/toolserver"
)

// Envelope is the optional shape of a tool result. Every field may be
// absent.
type Envelope struct {
	Summary         string `mapstructure:"summary"`
	Message         string `mapstructure:"message"`
	Error           string `mapstructure:"error"`
	Result          any    `mapstructure:"result"`
	UID             string `mapstructure:"uid"`
	ID              string `mapstructure:"id"`
	TxID            string `mapstructure:"tx_id"`
	TxIDAlt         string `mapstructure:"txId"`
	StampedAt       string `mapstructure:"stamped_at"`
	VerificationURL string `mapstructure:"verification_url"`
	ReportURL       string `mapstructure:"report_url"`
	ExplorerURL     string `mapstructure:"explorer_url"`
	ProofURL        string `mapstructure:"proof_url"`
}

// DecodeEnvelope reads the known fields of m, converting scalars to
// strings. Fields of an unexpected shape are left empty.
func DecodeEnvelope(m map[string]any) Envelope {
	var env Envelope
	if len(m) == 0 {
		return env
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &env,
	})
	if err != nil {
		return env
	}
	// Partial decodes are expected; mapstructure still fills the fields
	// it could convert.
	_ = dec.Decode(m)
	return env
}

// EnvelopeOf returns the envelope of res, taken from its structured content
// or, failing that, from the first JSON-object text block.
func EnvelopeOf(res *toolserver.CallResult) Envelope {
	if res == nil {
		return Envelope{}
	}
	if len(res.StructuredContent) > 0 {
		return DecodeEnvelope(res.StructuredContent)
	}
	for _, block := range res.Content {
		if m := blockObject(block); m != nil {
			return DecodeEnvelope(m)
		}
	}
	return Envelope{}
}

// Headline is the first non-empty of summary, message and error.
func (e Envelope) Headline() string {
	return firstNonEmpty(e.Summary, e.Message, e.Error)
}

// ResultText renders the result field when it is a scalar.
func (e Envelope) ResultText() string {
	switch v := e.Result.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool, float64, int, int64:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

// Links lists the URL fields that are set.
func (e Envelope) Links() []string {
	var out []string
	for _, u := range []string{e.VerificationURL, e.ReportURL, e.ExplorerURL, e.ProofURL} {
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

// PluckIDs finds transaction and unique identifiers in the content blocks
// of res: a json block, or a text block holding a JSON object.
func PluckIDs(res *toolserver.CallResult) (txID, uid string) {
	if res == nil {
		return "", ""
	}
	for _, block := range res.Content {
		m := blockObject(block)
		if m == nil {
			continue
		}
		env := DecodeEnvelope(m)
		txID = firstNonEmpty(env.TxID, env.TxIDAlt)
		uid = firstNonEmpty(env.UID, env.ID)
		if txID != "" || uid != "" {
			return txID, uid
		}
	}
	return "", ""
}

func blockObject(block toolserver.ContentBlock) map[string]any {
	switch block.Type {
	case "json":
		m, _ := block.JSON.(map[string]any)
		return m
	case "text":
		text := strings.TrimSpace(block.Text)
		if !strings.HasPrefix(text, "{") {
			return nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(text), &m); err != nil {
			return nil
		}
		return m
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
