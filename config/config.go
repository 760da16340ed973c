// Package config reads the settings of the artifact client from built-in
// defaults, an optional YAML file, a .env file and the process
// environment, in that order of increasing precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/artifactkit/artifact"
	"github.com/GoCodeAlone/artifactkit/store"
)

// Environment variables read by Load.
const (
	EnvBucketName      = "BUCKET_NAME"
	EnvRepository      = "GITHUB_REPOSITORY"
	EnvRunID           = "GITHUB_RUN_ID"
	EnvWorkspace       = "GITHUB_WORKSPACE"
	EnvEndpoint        = "ENDPOINT"
	EnvRegion          = "REGION"
	EnvAccessKey       = "ACCESS_KEY"
	EnvSecretKey       = "SECRET_KEY"
	EnvBackend         = "ARTIFACT_BACKEND"
	EnvUseSSL          = "ARTIFACT_USE_SSL"
	EnvLocalRoot       = "ARTIFACT_LOCAL_ROOT"
	EnvCredentialsFile = "ARTIFACT_GCS_CREDENTIALS_FILE"
	EnvProject         = "ARTIFACT_GCS_PROJECT"
	EnvPageSize        = "ARTIFACT_PAGE_SIZE"
)

// Config holds the client settings.
type Config struct {
	Backend         string `json:"backend" yaml:"backend"`
	Bucket          string `json:"bucket" yaml:"bucket"`
	Endpoint        string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Region          string `json:"region,omitempty" yaml:"region,omitempty"`
	AccessKey       string `json:"-" yaml:"accessKey,omitempty"`
	SecretKey       string `json:"-" yaml:"secretKey,omitempty"`
	UseSSL          bool   `json:"useSSL" yaml:"useSSL"`
	LocalRoot       string `json:"localRoot,omitempty" yaml:"localRoot,omitempty"`
	CredentialsFile string `json:"credentialsFile,omitempty" yaml:"credentialsFile,omitempty"`
	Project         string `json:"project,omitempty" yaml:"project,omitempty"`
	// Repository is "owner/name" or a bare repository name.
	Repository string `json:"repository" yaml:"repository"`
	RunID      string `json:"runId" yaml:"runId"`
	Workspace  string `json:"workspace,omitempty" yaml:"workspace,omitempty"`
	PageSize   int32  `json:"pageSize" yaml:"pageSize"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Backend:  store.BackendS3,
		UseSSL:   true,
		PageSize: store.MaxListKeys,
	}
}

// LoadOptions controls where Load looks.
type LoadOptions struct {
	// File is an optional YAML file. Empty skips it.
	File string
	// EnvFile is a dotenv file; a missing file is ignored. Empty means ".env".
	EnvFile string
	// LookupEnv reads the process environment. Nil means os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load reads the configuration once. Required values are not checked
// here; Scope and OpenStore report them as artifact.ErrConfig when used.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read config file: %v", artifact.ErrConfig, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config file: %v", artifact.ErrConfig, err)
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	dotenv, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: failed to read %s: %v", artifact.ErrConfig, envFile, err)
	}

	lookupEnv := opts.LookupEnv
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	lookup := func(key string) (string, bool) {
		if v, ok := lookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		EnvBucketName:      &c.Bucket,
		EnvRepository:      &c.Repository,
		EnvRunID:           &c.RunID,
		EnvWorkspace:       &c.Workspace,
		EnvEndpoint:        &c.Endpoint,
		EnvRegion:          &c.Region,
		EnvAccessKey:       &c.AccessKey,
		EnvSecretKey:       &c.SecretKey,
		EnvBackend:         &c.Backend,
		EnvLocalRoot:       &c.LocalRoot,
		EnvCredentialsFile: &c.CredentialsFile,
		EnvProject:         &c.Project,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup(EnvUseSSL); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", artifact.ErrConfig, EnvUseSSL, v)
		}
		c.UseSSL = b
	}
	if v, ok := lookup(EnvPageSize); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
		if err != nil || n <= 0 || n > store.MaxListKeys {
			return fmt.Errorf("%w: %s=%q must be between 1 and %d", artifact.ErrConfig, EnvPageSize, v, store.MaxListKeys)
		}
		c.PageSize = int32(n)
	}
	return nil
}

// Scope returns the addressing scope of the current run. GITHUB_REPOSITORY
// of the form "owner/name" yields an owner; a bare name yields none.
func (c *Config) Scope() (artifact.Scope, error) {
	if c.Repository == "" {
		return artifact.Scope{}, fmt.Errorf("%w: %s is not set", artifact.ErrConfig, EnvRepository)
	}
	if c.RunID == "" {
		return artifact.Scope{}, fmt.Errorf("%w: %s is not set", artifact.ErrConfig, EnvRunID)
	}
	scope := artifact.Scope{Repository: c.Repository, RunID: c.RunID}
	if owner, name, ok := strings.Cut(c.Repository, "/"); ok {
		scope.Owner, scope.Repository = owner, name
	}
	if err := scope.Validate(); err != nil {
		return artifact.Scope{}, fmt.Errorf("%w: %v", artifact.ErrConfig, err)
	}
	return scope, nil
}

// StoreConfig converts the settings into a store.Config.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Backend:         c.Backend,
		Bucket:          c.Bucket,
		Endpoint:        c.Endpoint,
		Region:          c.Region,
		AccessKey:       c.AccessKey,
		SecretKey:       c.SecretKey,
		UseSSL:          c.UseSSL,
		LocalRoot:       c.LocalRoot,
		CredentialsFile: c.CredentialsFile,
		Project:         c.Project,
	}
}

// OpenStore opens the configured backend. A missing bucket or local root
// is a configuration error.
func (c *Config) OpenStore(ctx context.Context) (store.ObjectStore, error) {
	switch strings.ToLower(c.Backend) {
	case store.BackendMemory:
	case store.BackendLocal:
		if c.LocalRoot == "" {
			return nil, fmt.Errorf("%w: %s is not set", artifact.ErrConfig, EnvLocalRoot)
		}
	default:
		if c.Bucket == "" {
			return nil, fmt.Errorf("%w: %s is not set", artifact.ErrConfig, EnvBucketName)
		}
	}
	s, err := store.Open(ctx, c.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: open %s store: %v", artifact.ErrConfig, c.Backend, err)
	}
	return s, nil
}

// ClientOptions returns the client options implied by the settings.
func (c *Config) ClientOptions() []artifact.Option {
	opts := []artifact.Option{artifact.WithPageSize(c.PageSize)}
	if c.Workspace != "" {
		opts = append(opts, artifact.WithWorkspace(c.Workspace))
	}
	return opts
}
