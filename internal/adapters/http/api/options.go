package api

import (
	"strings"

	"github.com/okian/songsort/pkg/logger"
)

const defaultMaxBodyBytes = 1 << 20

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS origins. An empty list keeps "*".
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		var out []string
		for _, o := range origins {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
		if len(out) > 0 {
			s.origins = out
		}
	}
}

// WithMaxBodyBytes caps the size of request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
