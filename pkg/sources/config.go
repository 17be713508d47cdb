package sources

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultTable is queried when a source does not name its table.
const DefaultTable = "measurements"

// SourceConfig is one entry of the databases file.
type SourceConfig struct {
	Name                   string            `yaml:"-"`
	Type                   string            `yaml:"type"`
	Host                   string            `yaml:"host"`
	Server                 string            `yaml:"server"` // SQL Server spelling of host
	Port                   int               `yaml:"port"`
	Database               string            `yaml:"database"`
	Username               string            `yaml:"username"`
	PasswordRef            string            `yaml:"password_ref"`
	Path                   string            `yaml:"path"` // sqlite
	Table                  string            `yaml:"table"`
	SSLMode                string            `yaml:"ssl_mode"`
	Encrypt                *bool             `yaml:"encrypt"`
	TrustServerCertificate bool              `yaml:"trust_server_certificate"`
	Instance               string            `yaml:"instance"`
	Options                map[string]string `yaml:"options"`
}

// Location is the host, server or path shown when listing sources.
func (c SourceConfig) Location() string {
	switch {
	case c.Host != "":
		return c.Host
	case c.Server != "":
		return c.Server
	case c.Path != "":
		return c.Path
	}
	return "N/A"
}

// TableName is the configured table or DefaultTable.
func (c SourceConfig) TableName() string {
	if c.Table == "" {
		return DefaultTable
	}
	return c.Table
}

type databasesFile struct {
	Databases map[string]SourceConfig `yaml:"databases"`
}

type passwordsFile struct {
	Passwords map[string]string `yaml:"passwords"`
}

// LoadSources reads the databases file. A missing file yields no sources.
func LoadSources(path string) (map[string]SourceConfig, error) {
	var f databasesFile
	if err := readYAML(path, &f); err != nil {
		return nil, err
	}
	out := make(map[string]SourceConfig, len(f.Databases))
	for name, c := range f.Databases {
		c.Name = name
		out[name] = c
	}
	return out, nil
}

// LoadPasswords reads the passwords file. A missing file yields no passwords.
func LoadPasswords(path string) (map[string]string, error) {
	var f passwordsFile
	if err := readYAML(path, &f); err != nil {
		return nil, err
	}
	if f.Passwords == nil {
		return map[string]string{}, nil
	}
	return f.Passwords, nil
}

func readYAML(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
