package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplateDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	body := `<html><body>
<p>Dear {{companyName}} team,</p>
<p>I am applying for the {{position}} role. {{whyInterested}}</p>
<img src="{{trackingUrl}}" width="1" height="1" alt="" />
</body></html>`

	for _, name := range []string{"backend.html", "platform.html", "intern.html", "general.html"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestRenderSubstitutesVariables(t *testing.T) {
	svc := NewService(writeTemplateDir(t))

	rendered := svc.Render("backend-developer", map[string]interface{}{
		"companyName":   "Acme",
		"position":      "Backend Engineer",
		"whyInterested": "Your platform team ships fast.",
		"trackingUrl":   "http://localhost:3000/api/track/open/abc",
	})
	require.NotNil(t, rendered)

	assert.Equal(t, "Application for Backend Engineer Position", rendered.Subject)
	assert.Contains(t, rendered.HTML, "Dear Acme team,")
	assert.Contains(t, rendered.HTML, "/api/track/open/abc")
}

func TestRenderUnknownRoleReturnsNil(t *testing.T) {
	svc := NewService(writeTemplateDir(t))
	assert.Nil(t, svc.Render("staff-magician", map[string]interface{}{}))
}

func TestRenderMissingDeclaredVariableIsEmpty(t *testing.T) {
	svc := NewService(writeTemplateDir(t))

	rendered := svc.Render("general", map[string]interface{}{
		"companyName": "Acme",
		"position":    "SWE",
	})
	require.NotNil(t, rendered)
	assert.Contains(t, rendered.HTML, "Dear Acme team,")
	// whyInterested was not supplied; it renders as empty, not an error
	assert.Contains(t, rendered.HTML, "role. </p>")
}

func TestRenderIgnoresUndeclaredVariables(t *testing.T) {
	svc := NewService(writeTemplateDir(t))

	rendered := svc.Render("general", map[string]interface{}{
		"companyName": "Acme",
		"position":    "SWE",
		"favoriteDog": "spaniel",
	})
	require.NotNil(t, rendered)
	assert.NotContains(t, rendered.HTML, "spaniel")
}

func TestValidateVariables(t *testing.T) {
	svc := NewService(writeTemplateDir(t))

	tests := []struct {
		name        string
		role        string
		vars        map[string]interface{}
		wantOK      bool
		wantMissing []string
	}{
		{
			name: "all present",
			role: "backend-developer",
			vars: map[string]interface{}{
				"companyName": "Acme", "position": "SWE", "aboutCompany": "x",
				"whyInterested": "x", "generalAboutMe": "x", "whyBestFit": "x",
			},
			wantOK: true,
		},
		{
			name:        "one absent",
			role:        "backend-developer",
			vars:        map[string]interface{}{"companyName": "Acme", "aboutCompany": "x", "whyInterested": "x", "generalAboutMe": "x", "whyBestFit": "x"},
			wantOK:      false,
			wantMissing: []string{"position"},
		},
		{
			name:        "empty string counts as missing",
			role:        "backend-developer",
			vars:        map[string]interface{}{"companyName": "Acme", "position": "", "aboutCompany": "x", "whyInterested": "x", "generalAboutMe": "x", "whyBestFit": "x"},
			wantOK:      false,
			wantMissing: []string{"position"},
		},
		{
			name:        "nil counts as missing",
			role:        "backend-developer",
			vars:        map[string]interface{}{"companyName": "Acme", "position": nil, "aboutCompany": "x", "whyInterested": "x", "generalAboutMe": "x", "whyBestFit": "x"},
			wantOK:      false,
			wantMissing: []string{"position"},
		},
		{
			name:   "tracking variables are never required",
			role:   "backend-developer",
			vars:   map[string]interface{}{"companyName": "Acme", "position": "SWE", "aboutCompany": "x", "whyInterested": "x", "generalAboutMe": "x", "whyBestFit": "x"},
			wantOK: true,
		},
		{
			name:   "unknown role",
			role:   "unknown",
			vars:   map[string]interface{}{},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, missing := svc.ValidateVariables(tt.role, tt.vars)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantMissing != nil {
				assert.Equal(t, tt.wantMissing, missing)
			}
		})
	}
}

func TestReloadSkipsBrokenRole(t *testing.T) {
	dir := writeTemplateDir(t)
	svc := NewService(dir)

	// Break one role's file; reload keeps the other roles available.
	require.NoError(t, os.Remove(filepath.Join(dir, "intern.html")))
	require.NoError(t, svc.Reload())

	_, ok := svc.Get("intern")
	assert.False(t, ok)
	_, ok = svc.Get("general")
	assert.True(t, ok)
	assert.Len(t, svc.All(), 3)
}

func TestRequiredVariablesExcludeTracking(t *testing.T) {
	svc := NewService(writeTemplateDir(t))
	tpl, ok := svc.Get("general")
	require.True(t, ok)

	required := tpl.RequiredVariables()
	assert.NotContains(t, required, "trackingId")
	assert.NotContains(t, required, "trackingUrl")
	assert.Contains(t, required, "companyName")
}
