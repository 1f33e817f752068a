// Package config holds the settings of a scan run. Values are layered:
// compiled defaults, then an optional YAML file, then SCANJOB_* environment
// variables, then command line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chanced/caps"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "SCANJOB_"

// Setting names. They double as flag names and derive the env variable names.
const (
	Bucket           = "bucket"
	Region           = "region"
	JobName          = "job-name"
	Manifest         = "manifest"
	Namespace        = "namespace"
	Timeout          = "timeout"
	BaseFolder       = "base-folder"
	FailureTailLines = "failure-tail-lines"
	StripANSI        = "strip-ansi"
	PushgatewayURL   = "pushgateway-url"
	KubeContext      = "kube-context"
	KubeConfig       = "kube-config"
	KubeConfigBase64 = "kube-config-base64"
	Debug            = "debug"
)

var Settings = []string{
	Bucket, Region, JobName, Manifest, Namespace, Timeout, BaseFolder,
	FailureTailLines, StripANSI, PushgatewayURL,
	KubeContext, KubeConfig, KubeConfigBase64, Debug,
}

type Config struct {
	Bucket     string        `yaml:"bucket"`
	Region     string        `yaml:"region"`
	JobName    string        `yaml:"jobName"`
	Manifest   string        `yaml:"manifest"`
	Namespace  string        `yaml:"namespace"`
	Timeout    time.Duration `yaml:"timeout"`
	BaseFolder string        `yaml:"baseFolder"`

	// FailureTailLines bounds the log captured when the job fails or times out.
	FailureTailLines int64 `yaml:"failureTailLines"`
	StripANSI        bool  `yaml:"stripANSI"`

	// PushgatewayURL enables pushing run metrics when set.
	PushgatewayURL string `yaml:"pushgatewayURL"`

	KubeContext      string `yaml:"kubeContext"`
	KubeConfig       string `yaml:"kubeConfig"`
	KubeConfigBase64 string `yaml:"kubeConfigBase64"`

	Debug bool `yaml:"debug"`
}

func Defaults() Config {
	return Config{
		Bucket:           "security-scan-reports",
		Region:           "us-east-1",
		JobName:          "kube-bench",
		Manifest:         "job.yaml",
		Namespace:        "default",
		Timeout:          5 * time.Minute,
		BaseFolder:       "kube-bench-reports",
		FailureTailLines: 100,
	}
}

// LoadFile overlays the YAML file at path on c. Keys absent from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config file %q: %w", path, err)
	}

	return nil
}

func EnvName(name string) string {
	return EnvPrefix + caps.ToScreamingSnake(name)
}

// ApplyEnv sets every setting whose env variable is present according to lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, name := range Settings {
		value, ok := lookup(EnvName(name))
		if !ok {
			continue
		}
		if err := c.Set(name, value); err != nil {
			return fmt.Errorf("%s: %w", EnvName(name), err)
		}
	}

	return nil
}

// Set assigns the setting called name from its string form.
func (c *Config) Set(name, value string) error {
	var err error

	switch name {
	case Bucket:
		c.Bucket = value
	case Region:
		c.Region = value
	case JobName:
		c.JobName = value
	case Manifest:
		c.Manifest = value
	case Namespace:
		c.Namespace = value
	case Timeout:
		c.Timeout, err = time.ParseDuration(value)
	case BaseFolder:
		c.BaseFolder = value
	case FailureTailLines:
		c.FailureTailLines, err = strconv.ParseInt(value, 10, 64)
	case StripANSI:
		c.StripANSI, err = strconv.ParseBool(value)
	case PushgatewayURL:
		c.PushgatewayURL = value
	case KubeContext:
		c.KubeContext = value
	case KubeConfig:
		c.KubeConfig = value
	case KubeConfigBase64:
		c.KubeConfigBase64 = value
	case Debug:
		c.Debug, err = strconv.ParseBool(value)
	default:
		return fmt.Errorf("unknown setting %q", name)
	}

	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}

	return nil
}

func (c *Config) Validate() error {
	var problems []string

	for name, value := range map[string]string{
		Bucket:     c.Bucket,
		Region:     c.Region,
		JobName:    c.JobName,
		Manifest:   c.Manifest,
		Namespace:  c.Namespace,
		BaseFolder: c.BaseFolder,
	} {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, fmt.Sprintf("%s must not be empty", name))
		}
	}

	if c.Timeout <= 0 {
		problems = append(problems, fmt.Sprintf("%s must be positive, got %s", Timeout, c.Timeout))
	}
	if c.FailureTailLines < 0 {
		problems = append(problems, fmt.Sprintf("%s must not be negative, got %d", FailureTailLines, c.FailureTailLines))
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return nil
}
