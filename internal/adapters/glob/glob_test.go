package glob_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/refresh/internal/adapters/glob"
	"go.trai.ch/refresh/internal/core/domain"
)

func TestCompiler_Match(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{"base name wildcard", "*.css", "app.css", true},
		{"base name in subdir", "*.css", "public/css/app.css", true},
		{"no match", "*.css", "app.html", false},
		{"dot file", "*.css", "public/.hidden.css", true},
		{"anchored path", "views/*.marko", "views/index.marko", true},
		{"anchored path nested miss", "views/*.marko", "views/pages/index.marko", false},
		{"double star", "views/**/*.marko", "views/pages/index.marko", true},
		{"directory pattern", "views/", "views/", true},
		{"base directory pattern", "templates/", "src/templates/", true},
		{"directory pattern against file", "views/", "views", false},
		{"leading dot slash", "./static/*.png", "static/logo.png", true},
		{"alternatives", "*.{png,jpg}", "img/photo.jpg", true},
	}

	c := glob.NewCompiler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := c.Compile(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Match(tt.path))
		})
	}
}

func TestCompiler_InvalidPattern(t *testing.T) {
	c := glob.NewCompiler()

	_, err := c.Compile("[unclosed")
	require.ErrorIs(t, err, domain.ErrInvalidPattern)

	_, err = c.Compile("")
	require.ErrorIs(t, err, domain.ErrInvalidPattern)
}
