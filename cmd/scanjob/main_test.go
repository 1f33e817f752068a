package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/werf/scanjob/pkg/config"
)

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanjob.yaml")
	content := "bucket: from-file\nregion: eu-west-1\nnamespace: from-file\ntimeout: 1m\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %s", err)
	}

	t.Setenv(config.EnvName(config.Region), "eu-central-1")
	t.Setenv(config.EnvName(config.Namespace), "from-env")

	var exitCode int
	cmd := newRunCmd(&exitCode)
	if err := cmd.Flags().Parse([]string{"--config", path, "-n", "from-flag"}); err != nil {
		t.Fatalf("parse flags: %s", err)
	}

	cfg, err := loadConfig(path, cmd.Flags())
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if cfg.Bucket != "from-file" {
		t.Errorf("file should override default bucket, got %q", cfg.Bucket)
	}
	if cfg.Region != "eu-central-1" {
		t.Errorf("env should override file region, got %q", cfg.Region)
	}
	if cfg.Namespace != "from-flag" {
		t.Errorf("flag should override env namespace, got %q", cfg.Namespace)
	}
	if cfg.Timeout != time.Minute {
		t.Errorf("unset flag default must not override file timeout, got %s", cfg.Timeout)
	}
	if cfg.JobName != "kube-bench" {
		t.Errorf("expected compiled default job name, got %q", cfg.JobName)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	var exitCode int
	cmd := newRunCmd(&exitCode)
	if err := cmd.Flags().Parse([]string{"--timeout", "0s"}); err != nil {
		t.Fatalf("parse flags: %s", err)
	}

	if _, err := loadConfig("", cmd.Flags()); err == nil {
		t.Error("expected validation error for zero timeout")
	}
}

func TestBaseFolderHelpMentionsUTC(t *testing.T) {
	var exitCode int
	flag := newRunCmd(&exitCode).Flags().Lookup(config.BaseFolder)
	if flag == nil {
		t.Fatalf("flag %q is not registered", config.BaseFolder)
	}
	if !strings.Contains(flag.Usage, "UTC") {
		t.Errorf("expected %q help to state the key time zone, got %q", config.BaseFolder, flag.Usage)
	}
}
