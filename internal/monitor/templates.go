// Package monitor holds named shell command templates for common
// system-inspection tasks. Templates are plain command strings run through
// the normal execute path, so they inherit working-directory handling,
// output truncation, and timeouts. A YAML file of name-to-command pairs can
// extend or override the builtin set.
package monitor

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

var builtin = map[string]string{
	"sysinfo": `echo "Hostname: $(hostname)"; ` +
		`echo "OS: $(cat /etc/os-release | grep PRETTY_NAME | cut -d= -f2 | tr -d '"')"; ` +
		`echo "Kernel: $(uname -r)"; ` +
		`echo "Uptime: $(uptime -p)"; ` +
		`echo "Users: $(who | wc -l)"`,
	"resources": `echo "CPU: $(top -bn1 | grep 'Cpu(s)' | sed 's/.*, *\([0-9.]*\)%* id.*/\1/' | awk '{print 100 - $1}')%"; ` +
		`echo "Memory: $(free -h | awk '/^Mem:/ {print $3 " / " $2 " (" int($3/$2 * 100) "%)"}')"; ` +
		`echo "Disk (/): $(df -h / | awk 'NR==2 {print $3 " / " $2 " (" $5 ")"}')"; ` +
		`echo "Load:$(uptime | awk -F'load average:' '{print $2}')"`,
	"disk":      "df -h | grep -v tmpfs | grep -v devtmpfs",
	"processes": "ps aux --sort=-%cpu | head -n 11",
	"network":   "ip -br addr show | grep -v '^lo'",
	"ports":     "ss -tulnp | grep LISTEN | head -n 20",
}

// Registry maps monitor names to shell commands.
type Registry struct {
	templates map[string]string
}

// NewRegistry returns a registry holding the builtin templates.
func NewRegistry() *Registry {
	templates := make(map[string]string, len(builtin))
	for name, cmd := range builtin {
		templates[name] = cmd
	}
	return &Registry{templates: templates}
}

// LoadFile merges name-to-command pairs from a YAML file into the registry.
// Entries with a builtin name override the builtin command.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read monitor templates: %w", err)
	}
	var custom map[string]string
	if err := yaml.Unmarshal(data, &custom); err != nil {
		return fmt.Errorf("parse monitor templates: %w", err)
	}
	for name, cmd := range custom {
		if name == "" || cmd == "" {
			continue
		}
		r.templates[name] = cmd
	}
	return nil
}

// Command returns the shell command for name.
func (r *Registry) Command(name string) (string, bool) {
	cmd, ok := r.templates[name]
	return cmd, ok
}

// Names returns all template names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
