// Package templates loads the prompt preambles and email bodies. Every
// field has a built-in default; a YAML file may override any of them.
package templates

import (
	htmltemplate "html/template"
	"os"
	texttemplate "text/template"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Templates holds template sources. Prompt fields are text/template
// sources rendered with the job name and URL; email fields are
// html/template sources rendered with the notify package's records.
type Templates struct {
	ChangePrompt string `yaml:"change_prompt"`
	PagePrompt   string `yaml:"page_prompt"`
	NamePrompt   string `yaml:"name_prompt"`
	ChangeEmail  string `yaml:"change_email"`
	PageEmail    string `yaml:"page_email"`
	FailureEmail string `yaml:"failure_email"`
	BackupEmail  string `yaml:"backup_email"`
}

// Default returns the built-in templates.
func Default() Templates {
	return Templates{
		ChangePrompt: defaultChangePrompt,
		PagePrompt:   defaultPagePrompt,
		NamePrompt:   defaultNamePrompt,
		ChangeEmail:  defaultChangeEmail,
		PageEmail:    defaultPageEmail,
		FailureEmail: defaultFailureEmail,
		BackupEmail:  defaultBackupEmail,
	}
}

// Parse overlays YAML content on the defaults and checks that every
// template compiles.
func Parse(content []byte) (Templates, error) {
	t := Default()
	if err := yaml.Unmarshal(content, &t); err != nil {
		return Templates{}, errors.Wrap(err, "invalid YAML")
	}

	// Empty overrides fall back to defaults
	def := Default()
	fill := func(dst *string, fallback string) {
		if *dst == "" {
			*dst = fallback
		}
	}
	fill(&t.ChangePrompt, def.ChangePrompt)
	fill(&t.PagePrompt, def.PagePrompt)
	fill(&t.NamePrompt, def.NamePrompt)
	fill(&t.ChangeEmail, def.ChangeEmail)
	fill(&t.PageEmail, def.PageEmail)
	fill(&t.FailureEmail, def.FailureEmail)
	fill(&t.BackupEmail, def.BackupEmail)

	if err := t.Validate(); err != nil {
		return Templates{}, err
	}
	return t, nil
}

// Validate compiles every template.
func (t Templates) Validate() error {
	for name, src := range map[string]string{
		"change_prompt": t.ChangePrompt,
		"page_prompt":   t.PagePrompt,
		"name_prompt":   t.NamePrompt,
	} {
		if _, err := texttemplate.New(name).Parse(src); err != nil {
			return errors.Wrapf(err, "template %s", name)
		}
	}
	for name, src := range map[string]string{
		"change_email":  t.ChangeEmail,
		"page_email":    t.PageEmail,
		"failure_email": t.FailureEmail,
		"backup_email":  t.BackupEmail,
	} {
		if _, err := htmltemplate.New(name).Parse(src); err != nil {
			return errors.Wrapf(err, "template %s", name)
		}
	}
	return nil
}

// ToYAML serializes the templates, e.g. to seed an override file.
func (t Templates) ToYAML() ([]byte, error) {
	return yaml.Marshal(&t)
}

// Load reads templates from path. An empty path yields the defaults.
func Load(path string) (Templates, error) {
	if path == "" {
		return Default(), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Templates{}, errors.Wrapf(err, "read templates %s", path)
	}
	return Parse(content)
}
