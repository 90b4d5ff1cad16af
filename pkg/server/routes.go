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
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/mcphost/pkg/observability"
)

// Handler builds the router.
// Order: recover -> request id -> logging -> tracing -> cors -> body limit
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(observability.HTTPMiddleware)
	r.Use(corsMiddleware(s.cfg.AllowedCORS))
	r.Use(middleware.RequestSize(s.cfg.BodyLimit))

	r.Get("/health", s.handleHealth)
	r.Post("/chat", s.handleChat)

	r.Get("/_tools", s.handleTools)
	r.Get("/_tool/health", s.handleToolHealth)

	if s.metricsHandler != nil {
		r.Handle(s.metricsPath, s.metricsHandler)
	}

	return r
}
