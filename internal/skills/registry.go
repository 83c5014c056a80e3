// ABOUTME: Skill registry keyed by name and semantic version
// ABOUTME: Resolves names to their latest version and builds injected context

package skills

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// UnknownSkillError reports names that did not resolve to any skill.
type UnknownSkillError struct {
	Names []string
}

func (e *UnknownSkillError) Error() string {
	return "unknown skill: " + strings.Join(e.Names, ", ")
}

// Registry maintains a catalog of skills keyed by name and version.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]*Skill
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		skills: make(map[string]*Skill),
	}
}

// Register inserts a skill into the registry.
func (r *Registry) Register(skill *Skill) error {
	if skill == nil {
		return fmt.Errorf("skill is nil")
	}
	if err := skill.Validate(); err != nil {
		return err
	}
	key := registryKey(skill.Name, skill.Version)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.skills[key]; exists {
		return fmt.Errorf("skill %s already registered", key)
	}
	r.skills[key] = skill
	return nil
}

// LoadDir registers every *.md file under dir.
func (r *Registry) LoadDir(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		skill, err := LoadFile(path)
		if err != nil {
			return err
		}
		if err := r.Register(skill); err != nil {
			return fmt.Errorf("register %s: %w", path, err)
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("loading skills from %s: %w", dir, err)
	}
	return count, nil
}

// Latest returns the highest version registered for a skill name.
func (r *Registry) Latest(name string) (*Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latestLocked(strings.ToLower(strings.TrimSpace(name)))
}

func (r *Registry) latestLocked(name string) (*Skill, bool) {
	var latest *Skill
	for key, skill := range r.skills {
		if !strings.HasPrefix(key, name+"@") {
			continue
		}
		if latest == nil || compareVersions(skill.Version, latest.Version) > 0 {
			latest = skill
		}
	}
	return latest, latest != nil
}

// List returns the latest version of every skill, sorted by name.
func (r *Registry) List() []*Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	out := make([]*Skill, 0, len(r.skills))
	for _, s := range r.skills {
		if _, ok := seen[s.Name]; ok {
			continue
		}
		seen[s.Name] = struct{}{}
		latest, _ := r.latestLocked(s.Name)
		out = append(out, latest)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Context joins the bodies of the named skills, in the order given, with a
// blank line between them. Duplicate names are included once. Any unknown
// name fails the whole call with *UnknownSkillError.
func (r *Registry) Context(names ...string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		bodies  []string
		missing []string
		seen    = make(map[string]struct{})
	)
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		skill, ok := r.latestLocked(name)
		if !ok {
			missing = append(missing, raw)
			continue
		}
		bodies = append(bodies, skill.Body)
	}
	if len(missing) > 0 {
		return "", &UnknownSkillError{Names: missing}
	}
	return strings.Join(bodies, "\n\n"), nil
}

func registryKey(name, version string) string {
	return strings.ToLower(name) + "@" + version
}

func compareVersions(a, b string) int {
	av, err1 := semver.NewVersion(a)
	bv, err2 := semver.NewVersion(b)
	if err1 != nil || err2 != nil {
		return strings.Compare(a, b)
	}
	return av.Compare(bv)
}
