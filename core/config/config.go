// Package config loads and validates the workbench configuration
// directory.
package config

import (
	_ "embed"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"

	"github.com/fdlab/fdlab/core/sched"
)

//go:embed default/config.yaml
var defaultConfigData []byte

const (
	ConfigurationName = "config.yaml"
	TraceDirName      = "traces"
	HostKeyName       = "host_key"
)

type Configuration struct {
	configFs afero.Fs

	// Hostname shown in the lesson shell prompt and SSH banner.
	Hostname string `json:"hostname" validate:"required,hostname_rfc1123"`
	// Prompt for the lesson shell.
	Prompt string `json:"prompt"`
	// SSHPort is where `fdlab serve` listens.
	SSHPort int `json:"ssh_port" validate:"gte=0,lte=65535"`

	Cluster Cluster `json:"cluster"`
}

// Cluster is the capacity profile the scheduler admits jobs against.
type Cluster struct {
	CPUs            int         `json:"cpus" validate:"gt=0"`
	Memory          string      `json:"memory" validate:"required"`
	Backfill        bool        `json:"backfill"`
	MaxStartsPerSec float64     `json:"max_starts_per_sec" validate:"gte=0"`
	OpenMode        string      `json:"open_mode" validate:"oneof=truncate append"`
	Partitions      []Partition `json:"partitions" validate:"required,min=1,unique=Name,dive"`
}

type Partition struct {
	Name      string `json:"name" validate:"required"`
	MaxCPUs   int    `json:"max_cpus" validate:"gt=0"`
	MaxMemory string `json:"max_memory" validate:"required"`
	// MaxTime uses workload-manager wall time syntax, e.g. "04:00:00"
	// or "2-00:00:00". Empty means unlimited.
	MaxTime string `json:"max_time"`
	Default bool   `json:"default"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	if err := validate.Struct(c); err != nil {
		return err
	}

	// Quantities parse lazily; check them up front so a typo fails at
	// load time rather than at submit.
	_, _, err := c.Cluster.Limits()
	return err
}

// Limits converts the YAML quantity strings into the scheduler's
// native capacity and partition limits.
func (c Cluster) Limits() (sched.Capacity, []sched.Partition, error) {
	var mem datasize.ByteSize
	if err := mem.UnmarshalText([]byte(c.Memory)); err != nil {
		return sched.Capacity{}, nil, fmt.Errorf("cluster memory %q: %w", c.Memory, err)
	}
	capacity := sched.Capacity{CPUs: c.CPUs, Memory: mem.Bytes()}

	var partitions []sched.Partition
	for _, p := range c.Partitions {
		var pmem datasize.ByteSize
		if err := pmem.UnmarshalText([]byte(p.MaxMemory)); err != nil {
			return sched.Capacity{}, nil, fmt.Errorf("partition %s max_memory %q: %w", p.Name, p.MaxMemory, err)
		}

		var maxTime time.Duration
		if p.MaxTime != "" {
			var err error
			maxTime, err = sched.ParseWallTime(p.MaxTime)
			if err != nil {
				return sched.Capacity{}, nil, fmt.Errorf("partition %s max_time: %w", p.Name, err)
			}
		}

		partitions = append(partitions, sched.Partition{
			Name:      p.Name,
			MaxCPUs:   p.MaxCPUs,
			MaxMemory: pmem.Bytes(),
			MaxTime:   maxTime,
			Default:   p.Default,
		})
	}
	return capacity, partitions, nil
}

func (c *Configuration) fs() afero.Fs {
	return c.configFs
}

// CreateTraceLog creates a fresh trace log under traces/.
func (c *Configuration) CreateTraceLog(name string) (afero.File, error) {
	return c.fs().Create(filepath.Join(TraceDirName, name))
}

// ListTraceLogs returns the names of recorded trace logs, oldest
// first.
func (c *Configuration) ListTraceLogs() ([]string, error) {
	infos, err := afero.ReadDir(c.fs(), TraceDirName)
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ModTime().Before(infos[j].ModTime())
	})
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if !info.IsDir() {
			names = append(names, info.Name())
		}
	}
	return names, nil
}

// OpenTraceLog opens an existing trace log for reading.
func (c *Configuration) OpenTraceLog(name string) (afero.File, error) {
	return c.fs().Open(filepath.Join(TraceDirName, name))
}

// HostKeyPEM returns the bytes of the SSH host key.
func (c *Configuration) HostKeyPEM() ([]byte, error) {
	return afero.ReadFile(c.fs(), HostKeyName)
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
