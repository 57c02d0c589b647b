package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/hay-kot/criterio"
)

// ValidateDeep performs comprehensive validation of the configuration
// including backend requirements, endpoint syntax and file accessibility.
// An empty configPath skips the config file check. Validate runs first.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		c.validateFileAccess(configPath),
		c.validateBackend(),
		c.validateEndpoints(),
	)
}

func (c *Config) validateFileAccess(configPath string) error {
	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
	)
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // will be created
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}

// validateBackend checks the fields the selected store backend requires.
func (c *Config) validateBackend() error {
	var errs criterio.FieldErrorsBuilder

	switch c.Store.Backend {
	case BackendPostgres:
		if c.Store.Postgres.DSN == "" {
			errs = errs.Append("store.postgres.dsn", fmt.Errorf("required for the postgres backend"))
		}
	case BackendS3:
		if c.Store.S3.Bucket == "" {
			errs = errs.Append("store.s3.bucket", fmt.Errorf("required for the s3 backend"))
		}
		if c.Store.S3.Endpoint != "" {
			if err := absoluteURL(c.Store.S3.Endpoint); err != nil {
				errs = errs.Append("store.s3.endpoint", err)
			}
		}
	}

	return errs.ToError()
}

func (c *Config) validateEndpoints() error {
	return criterio.ValidateStruct(
		criterio.Run("github.base_url", c.Github.BaseURL, absoluteURL),
		criterio.Run("activity.url", c.Activity.URL, absoluteURL),
		criterio.Run("identity.url", c.Identity.URL, absoluteURL),
	)
}

func absoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}
