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

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kadirpekel/mcphost/pkg/catalog"
	"github.com/kadirpekel/mcphost/pkg/model/selector"
	"github.com/kadirpekel/mcphost/pkg/orchestrator"
	"github.com/kadirpekel/mcphost/pkg/toolcall"
	"github.com/kadirpekel/mcphost/pkg/toolserver"
)

const anonymousUser = "anon"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFrom(r.Context())

	var req orchestrator.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.RequestID = requestID
	req.UserID = firstNonEmpty(r.Header.Get(HeaderUserID), req.UserID, anonymousUser)
	req.APIKey = firstNonEmpty(r.Header.Get(HeaderAPIKey), req.APIKey)

	resp, err := s.chat.HandleChatTurn(r.Context(), req)
	if err != nil {
		var verr *orchestrator.ValidationError
		var cerr *selector.ConfigError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr.Msg)
		case errors.As(err, &cerr):
			writeError(w, http.StatusBadRequest, cerr.Msg)
		default:
			s.logger.Error("chat turn failed", "request_id", requestID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":     "internal_error",
				"requestId": requestID,
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	items, err := catalog.Build(r.Context(), s.tools)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if items == nil {
		items = []catalog.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": items})
}

func (s *Server) handleToolHealth(w http.ResponseWriter, r *http.Request) {
	res, err := s.tools.CallTool(r.Context(), catalog.Health, map[string]any{}, toolserver.CallOptions{Timeout: toolcall.DefaultTimeout})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
