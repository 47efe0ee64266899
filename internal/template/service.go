// Package template loads the role-specific HTML email templates and renders
// them with the Liquid template language.
package template

import (
	"fmt"
	"html"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/automail/internal/pkg/logger"
)

// RoleTemplate describes one role's email template. Immutable after load;
// the whole set is replaced as a unit on Reload.
type RoleTemplate struct {
	ID        string   `json:"id"`
	Role      string   `json:"role"`
	Name      string   `json:"name"`
	Subject   string   `json:"subject"`
	HTMLFile  string   `json:"-"`
	Variables []string `json:"variables"`
}

// RequiredVariables returns the variables a caller must supply. Tracking
// variables are excluded because they are injected by the send pipeline.
func (t RoleTemplate) RequiredVariables() []string {
	required := make([]string, 0, len(t.Variables))
	for _, v := range t.Variables {
		if strings.Contains(strings.ToLower(v), "tracking") {
			continue
		}
		required = append(required, v)
	}
	return required
}

// Rendered is the output of a successful template render.
type Rendered struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

type compiledTemplate struct {
	meta    RoleTemplate
	subject *liquid.Template
	body    *liquid.Template
}

// Service compiles and renders the role template set.
type Service struct {
	dir    string
	engine *liquid.Engine

	mu        sync.RWMutex
	templates map[string]*compiledTemplate
}

// builtinRoles is the fixed role catalog; the HTML body for each role lives
// in the configured templates directory.
var builtinRoles = []RoleTemplate{
	{
		ID:       "backend-developer",
		Role:     "backend-developer",
		Name:     "Backend Developer Application",
		Subject:  "Application for {{position}} Position",
		HTMLFile: "backend.html",
		Variables: []string{
			"companyName", "position", "aboutCompany", "whyInterested",
			"generalAboutMe", "whyBestFit", "trackingId", "trackingUrl",
		},
	},
	{
		ID:       "platform-engineer",
		Role:     "platform-engineer",
		Name:     "Platform Engineer Application",
		Subject:  "Application for {{position}} Position",
		HTMLFile: "platform.html",
		Variables: []string{
			"companyName", "position", "aboutCompany", "whyInterested",
			"generalAboutMe", "whyBestFit", "trackingId", "trackingUrl",
		},
	},
	{
		ID:       "intern",
		Role:     "intern",
		Name:     "Internship Application",
		Subject:  "Application for {{position}} Internship",
		HTMLFile: "intern.html",
		Variables: []string{
			"companyName", "position", "aboutCompany", "whyInterested",
			"generalAboutMe", "whyBestFit", "trackingId", "trackingUrl",
		},
	},
	{
		ID:       "general",
		Role:     "general",
		Name:     "General Software Developer Application",
		Subject:  "Application for {{position}} Position",
		HTMLFile: "general.html",
		Variables: []string{
			"companyName", "position", "aboutCompany", "whyInterested",
			"generalAboutMe", "whyBestFit", "trackingId", "trackingUrl",
		},
	},
}

// NewService creates a template service and loads the role set from dir.
func NewService(dir string) *Service {
	engine := liquid.NewEngine()

	s := &Service{
		dir:       dir,
		engine:    engine,
		templates: map[string]*compiledTemplate{},
	}
	s.registerCustomFilters()

	if err := s.Reload(); err != nil {
		logger.Error("template load failed", "error", err.Error())
	}
	return s
}

// registerCustomFilters adds domain-specific Liquid filters
func (s *Service) registerCustomFilters() {
	// Default value filter: {{ companyName | default: "your company" }}
	s.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	// Capitalize first letter: {{ position | capitalize }}
	s.engine.RegisterFilter("capitalize", func(v string) string {
		if len(v) == 0 {
			return v
		}
		return strings.ToUpper(string(v[0])) + strings.ToLower(v[1:])
	})

	// Truncate with ellipsis: {{ aboutCompany | truncate: 80 }}
	s.engine.RegisterFilter("truncate", func(v string, length int) string {
		if len(v) <= length {
			return v
		}
		if length <= 3 {
			return v[:length]
		}
		return v[:length-3] + "..."
	})

	// URL encode: {{ companyName | urlencode }}
	s.engine.RegisterFilter("urlencode", func(v string) string {
		return url.QueryEscape(v)
	})

	// HTML escape (safety): {{ whyBestFit | escape }}
	s.engine.RegisterFilter("escape", func(v string) string {
		return html.EscapeString(v)
	})
}

// Reload clears and rebuilds the whole template set atomically from the
// source files. A role whose file is missing or fails to compile is logged
// and skipped; the remaining roles still load.
func (s *Service) Reload() error {
	next := make(map[string]*compiledTemplate, len(builtinRoles))

	for _, meta := range builtinRoles {
		path := filepath.Join(s.dir, meta.HTMLFile)

		raw, err := os.ReadFile(path)
		if err != nil {
			logger.Error("template file unreadable", "role", meta.Role, "path", path, "error", err.Error())
			continue
		}
		body, err := s.engine.ParseString(string(raw))
		if err != nil {
			logger.Error("template body parse failed", "role", meta.Role, "error", err.Error())
			continue
		}
		subject, err := s.engine.ParseString(meta.Subject)
		if err != nil {
			logger.Error("template subject parse failed", "role", meta.Role, "error", err.Error())
			continue
		}

		next[meta.Role] = &compiledTemplate{meta: meta, subject: subject, body: body}
		logger.Info("loaded template", "role", meta.Role, "name", meta.Name)
	}

	s.mu.Lock()
	s.templates = next
	s.mu.Unlock()

	if len(next) == 0 {
		return fmt.Errorf("no templates loaded from %s", s.dir)
	}
	return nil
}

// Get returns the template registered for role.
func (s *Service) Get(role string) (RoleTemplate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[role]
	if !ok {
		return RoleTemplate{}, false
	}
	return t.meta, true
}

// All returns every loaded template, sorted by role.
func (s *Service) All() []RoleTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RoleTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t.meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}

// Render produces the subject and HTML body for a role. It returns nil when
// the role is unknown or either render fails; variables the template does
// not declare are simply ignored by the engine, and declared-but-missing
// variables render as empty strings.
func (s *Service) Render(role string, variables map[string]interface{}) *Rendered {
	s.mu.RLock()
	t, ok := s.templates[role]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	subject, err := t.subject.RenderString(variables)
	if err != nil {
		logger.Error("subject render failed", "role", role, "error", err.Error())
		return nil
	}
	body, err := t.body.RenderString(variables)
	if err != nil {
		logger.Error("body render failed", "role", role, "error", err.Error())
		return nil
	}

	return &Rendered{Subject: subject, HTML: body}
}

// ValidateVariables checks that every declared non-tracking variable is
// present and non-empty. A variable counts as missing when it is absent,
// nil, or the empty string.
func (s *Service) ValidateVariables(role string, variables map[string]interface{}) (bool, []string) {
	t, ok := s.Get(role)
	if !ok {
		return false, nil
	}

	var missing []string
	for _, name := range t.RequiredVariables() {
		v, present := variables[name]
		if !present || v == nil {
			missing = append(missing, name)
			continue
		}
		if str, isStr := v.(string); isStr && str == "" {
			missing = append(missing, name)
		}
	}
	return len(missing) == 0, missing
}
