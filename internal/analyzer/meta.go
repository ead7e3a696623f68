package analyzer

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// workflowDescription returns the "name" of a CI workflow definition.
func workflowDescription(content []byte) string {
	var doc struct {
		Name string `yaml:"name"`
	}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return ""
	}
	if doc.Name == "" {
		return ""
	}
	return doc.Name + " workflow"
}

// pyprojectDescription returns project.description, falling back to the
// poetry table used by older projects.
func pyprojectDescription(content []byte) string {
	var doc struct {
		Project struct {
			Name        string `toml:"name"`
			Description string `toml:"description"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Description string `toml:"description"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if err := toml.Unmarshal(content, &doc); err != nil {
		return ""
	}
	if doc.Project.Description != "" {
		return doc.Project.Description
	}
	return doc.Tool.Poetry.Description
}

// markdownHeading returns the first ATX heading, or the first non-empty line.
func markdownHeading(content []byte) string {
	var first string
	sc := bufio.NewScanner(bytes.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
		if first == "" {
			first = line
		}
	}
	return first
}
