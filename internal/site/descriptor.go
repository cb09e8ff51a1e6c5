package site

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Descriptor is a site adapter defined in a YAML sites file.
type Descriptor struct {
	SiteName  string    `yaml:"name"`
	Hosts     []string  `yaml:"hostnames"`
	Sel       Selectors `yaml:"selectors"`
	Theme     string    `yaml:"themeColor,omitempty"`
	ValidPath string    `yaml:"validPathContains,omitempty"`

	// ChatIDQuery names the query parameter carrying the chat id. When empty the
	// last path segment is used.
	ChatIDQuery string `yaml:"chatIdQuery,omitempty"`
	// FallbackPrefix prefixes time-based ids when ChatIDQuery is absent from the URL.
	FallbackPrefix string `yaml:"chatIdFallbackPrefix,omitempty"`
}

func (d Descriptor) Name() string              { return d.SiteName }
func (d Descriptor) Hostnames() []string       { return d.Hosts }
func (d Descriptor) Selectors() Selectors      { return d.Sel }
func (d Descriptor) DefaultThemeColor() string { return d.Theme }

func (d Descriptor) IsValidPage(u *url.URL) bool {
	return d.ValidPath == "" || strings.Contains(u.Path, d.ValidPath)
}

func (d Descriptor) ChatID(u *url.URL, now time.Time) string {
	if d.ChatIDQuery == "" {
		return lastPathSegment(u)
	}
	if id := u.Query().Get(d.ChatIDQuery); id != "" {
		return id
	}
	prefix := d.FallbackPrefix
	if prefix == "" {
		prefix = strings.ToLower(d.SiteName)
	}
	return timeFallback(prefix, now)
}

// Validate checks the fields every tracker depends on.
func (d Descriptor) Validate() error {
	var errs []error
	if d.SiteName == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(d.Hosts) == 0 {
		errs = append(errs, errors.New("at least one hostname is required"))
	}
	if d.Sel.Message == "" {
		errs = append(errs, errors.New("selectors.message is required"))
	}
	return errors.Join(errs...)
}

type sitesFile struct {
	Sites []Descriptor `yaml:"sites"`
}

// LoadFile reads site descriptors from a YAML file. A missing file yields no
// adapters and no error.
func LoadFile(path string) ([]Adapter, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sites file: %w", err)
	}

	var f sitesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sites file %s: %w", path, err)
	}

	adapters := make([]Adapter, 0, len(f.Sites))
	for i, d := range f.Sites {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("sites[%d] (%s): %w", i, d.SiteName, err)
		}
		adapters = append(adapters, d)
	}
	return adapters, nil
}
