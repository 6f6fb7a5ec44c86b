package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"semear/internal/rotation"
)

// DefaultRotationFile is read when ROTATION_CONFIG is unset. It may be absent.
const DefaultRotationFile = "rotation.yaml"

// RotationFile is the on-disk rotation settings shared by the issuer server
// and every wallet. Environment variables override individual fields.
// TrustedIssuers pins the cooperative keys wallets accept.
type RotationFile struct {
	Mode           string   `yaml:"mode"`
	Salt           string   `yaml:"salt"`
	Depth          int      `yaml:"history_depth"`
	Timezone       string   `yaml:"timezone"`
	TrustedIssuers []string `yaml:"trusted_issuers"`
}

// LoadRotation reads the rotation file at path (DefaultRotationFile when
// empty), applies DID_ROTATION_MODE, DID_SALT, DID_HISTORY_DEPTH and
// DID_TIMEZONE, and validates the result.
func LoadRotation(path string) (rotation.Config, error) {
	file, err := ReadRotationFile(path)
	if err != nil {
		return rotation.Config{}, err
	}
	return file.Config()
}

// ReadRotationFile is LoadRotation without building the Config, for callers
// that also need the pinned issuers.
func ReadRotationFile(path string) (RotationFile, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultRotationFile
	}

	var file RotationFile
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return RotationFile{}, fmt.Errorf("parse rotation config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return RotationFile{}, fmt.Errorf("read rotation config: %w", err)
	}
	return file.withEnv(), nil
}

// RotationFromEnv is LoadRotation using ROTATION_CONFIG for the path.
func RotationFromEnv() (rotation.Config, error) {
	return LoadRotation(os.Getenv("ROTATION_CONFIG"))
}

func (f RotationFile) withEnv() RotationFile {
	if v := strings.TrimSpace(os.Getenv("DID_ROTATION_MODE")); v != "" {
		f.Mode = v
	}
	if v := os.Getenv("DID_SALT"); v != "" {
		f.Salt = v
	}
	if v := strings.TrimSpace(os.Getenv("DID_HISTORY_DEPTH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Depth = n
		} else {
			f.Depth = -1
		}
	}
	if v := strings.TrimSpace(os.Getenv("DID_TIMEZONE")); v != "" {
		f.Timezone = v
	}
	return f
}

// Config validates f and builds the rotation config it describes.
func (f RotationFile) Config() (rotation.Config, error) {
	mode := rotation.DefaultMode
	if f.Mode != "" {
		m, err := rotation.ParseMode(f.Mode)
		if err != nil {
			return rotation.Config{}, err
		}
		mode = m
	}
	if f.Depth < 0 {
		return rotation.Config{}, fmt.Errorf("history depth must be a positive integer")
	}

	loc := time.UTC
	if f.Timezone != "" {
		l, err := time.LoadLocation(f.Timezone)
		if err != nil {
			return rotation.Config{}, fmt.Errorf("load timezone %q: %w", f.Timezone, err)
		}
		loc = l
	}
	return rotation.NewConfig(mode, f.Salt, rotation.WithDepth(f.Depth), rotation.WithLocation(loc))
}
