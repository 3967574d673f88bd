package envgen

import (
	"bytes"
	"embed"
	"fmt"
	"sort"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// TemplateEngine handles template loading and rendering
type TemplateEngine struct {
	templates map[string]*template.Template
}

// NewTemplateEngine creates a new template engine with embedded templates
func NewTemplateEngine() (*TemplateEngine, error) {
	engine := &TemplateEngine{
		templates: make(map[string]*template.Template),
	}

	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("failed to read templates directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		content, err := templateFS.ReadFile("templates/" + name)
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		engine.templates[name] = tmpl
	}

	return engine, nil
}

// Render renders a template with the given data
func (e *TemplateEngine) Render(templateName string, data any) ([]byte, error) {
	tmpl, ok := e.templates[templateName]
	if !ok {
		return nil, fmt.Errorf("template not found: %s", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template %s: %w", templateName, err)
	}

	return buf.Bytes(), nil
}

// ListTemplates returns all available template names, sorted
func (e *TemplateEngine) ListTemplates() []string {
	names := make([]string, 0, len(e.templates))
	for name := range e.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TemplateData holds all data needed to render the Dockerfile
type TemplateData struct {
	Name      string
	BaseImage string

	UID      int
	GID      int
	Username string
	Home     string

	Env       []EnvVar
	Steps     []RenderedStep
	Workspace string
	LoginPath string
}

// RenderedStep is a Step reduced to its Dockerfile instruction
type RenderedStep struct {
	Name        string
	Layer       Layer
	User        string
	SwitchUser  bool   // user differs from the previous instruction
	Instruction string // RUN or COPY
	Body        string
}

// NewTemplateData creates TemplateData from a BuildConfig and its steps
func NewTemplateData(cfg *BuildConfig, steps []Step) *TemplateData {
	data := &TemplateData{
		Name:      cfg.Name,
		BaseImage: cfg.BaseImage,
		UID:       cfg.UID,
		GID:       cfg.GID,
		Username:  cfg.Username,
		Home:      cfg.Home,
		Env:       Environment(cfg),
		Workspace: cfg.Workspace(),
		LoginPath: LoginPath(cfg.Shell),
	}

	current := "root"
	for _, s := range steps {
		rs := RenderedStep{Name: s.Name, Layer: s.Layer, User: "root"}
		if s.AsUser {
			rs.User = cfg.Username
		}
		rs.SwitchUser = rs.User != current
		current = rs.User

		if s.Copy != nil {
			rs.Instruction = "COPY"
			rs.Body = fmt.Sprintf("--chown=${USER_UID}:${USER_GID} %s %s", s.Copy.Source, s.Copy.Destination)
		} else {
			rs.Instruction = "RUN"
			rs.Body = s.Script()
		}
		data.Steps = append(data.Steps, rs)
	}

	return data
}
