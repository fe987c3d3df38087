package config

import (
	"path/filepath"

	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// Load loads the configuration from the directory.
func Load(path string) (*Configuration, error) {
	return LoadFs(afero.NewOsFs(), path)
}

// LoadFs is Load against an arbitrary filesystem, for tests.
func LoadFs(fs afero.Fs, path string) (*Configuration, error) {
	// If given the path to a config.yaml file, move back up a level.
	if filepath.Base(path) == ConfigurationName {
		path = filepath.Dir(path)
	}

	configContents, err := afero.ReadFile(fs, filepath.Join(path, ConfigurationName))
	if err != nil {
		return nil, err
	}
	var out Configuration
	if err := yaml.UnmarshalStrict(configContents, &out); err != nil {
		return nil, err
	}
	out.configFs = afero.NewBasePathFs(fs, path)

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}
