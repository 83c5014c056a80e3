// ABOUTME: Skill manifest parsing from markdown with YAML front matter
// ABOUTME: Uses goldmark to find the first heading and render HTML

package skills

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

const (
	defaultVersion   = "0.1.0"
	frontMatterFence = "---"
)

// Manifest is the front matter of a skill file.
type Manifest struct {
	Name    string   `json:"name" yaml:"name"`
	Version string   `json:"version" yaml:"version"`
	Summary string   `json:"summary" yaml:"summary"`
	Tags    []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Skill is a parsed skill file.
type Skill struct {
	Manifest
	Body   string `json:"-"`
	Source string `json:"-"`
}

// Validate ensures the manifest is structurally sound.
func (m Manifest) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("skill name is required")
	}
	if strings.ContainsAny(m.Name, " \t\n@") {
		return fmt.Errorf("skill name %q must not contain whitespace or @", m.Name)
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return fmt.Errorf("invalid version %q: %w", m.Version, err)
	}
	return nil
}

// LoadFile reads one skill from disk.
func LoadFile(path string) (*Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("skills: read %s: %w", path, err)
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	s, err := Parse(stem, data)
	if err != nil {
		return nil, fmt.Errorf("skills: %s: %w", path, err)
	}
	s.Source = filepath.Clean(path)
	return s, nil
}

// Parse builds a skill from file contents. defaultName is used when the
// front matter does not set a name.
func Parse(defaultName string, data []byte) (*Skill, error) {
	front, body, err := splitFrontMatter(data)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if len(front) > 0 {
		if err := yaml.Unmarshal(front, &m); err != nil {
			return nil, fmt.Errorf("decode front matter: %w", err)
		}
	}
	if m.Name == "" {
		m.Name = defaultName
	}
	m.Name = strings.ToLower(strings.TrimSpace(m.Name))
	if m.Version == "" {
		m.Version = defaultVersion
	}

	body = bytes.TrimSpace(body)
	if m.Summary == "" {
		m.Summary = firstHeading(body)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("skill %s has no content", m.Name)
	}

	return &Skill{Manifest: m, Body: string(body)}, nil
}

// HTML renders the skill body.
func (s *Skill) HTML() (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(s.Body), &buf); err != nil {
		return "", fmt.Errorf("rendering skill %s: %w", s.Name, err)
	}
	return buf.String(), nil
}

func splitFrontMatter(data []byte) (front, body []byte, err error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(data, []byte(frontMatterFence+"\n")) {
		return nil, data, nil
	}
	rest := data[len(frontMatterFence)+1:]

	end := 0
	if !bytes.HasPrefix(rest, []byte(frontMatterFence)) {
		i := bytes.Index(rest, []byte("\n"+frontMatterFence))
		if i < 0 {
			return nil, nil, fmt.Errorf("unterminated front matter")
		}
		end = i + 1
	}
	front = rest[:end]

	closing := rest[end:]
	if nl := bytes.IndexByte(closing, '\n'); nl >= 0 {
		body = closing[nl+1:]
	}
	return front, body, nil
}

// firstHeading returns the plain text of the first markdown heading.
func firstHeading(source []byte) string {
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var heading string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		heading = strings.TrimSpace(inlineText(h, source))
		return ast.WalkStop, nil
	})
	return heading
}

func inlineText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := c.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				sb.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}
