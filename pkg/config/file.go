// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/virt-joiner/virt-joiner/pkg/config/env"
)

// DefaultConfigPath is where the optional configuration file is looked up
// when CONFIG_PATH is not set.
const DefaultConfigPath = "virt-joiner.yaml"

// fileConfig mirrors the YAML configuration file. All fields are optional;
// absent fields leave the current value untouched.
type fileConfig struct {
	IPAHost       *string      `json:"ipa_host,omitempty"`
	IPAUser       *string      `json:"ipa_user,omitempty"`
	IPAPass       *string      `json:"ipa_pass,omitempty"`
	IPAVerifySSL  *bool        `json:"ipa_verify_ssl,omitempty"`
	Domain        *string      `json:"domain,omitempty"`
	FinalizerName *string      `json:"finalizer_name,omitempty"`
	OSMap         []OSMapEntry `json:"os_map,omitempty"`
}

// FromFile returns the provided Config overridden by the YAML file at path.
// A missing file is not an error.
func FromFile(config Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return config, errors.Wrapf(err, "failed to read config file %q", path)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return config, errors.Wrapf(err, "failed to parse config file %q", path)
	}

	if fc.IPAHost != nil {
		config.IPAHost = *fc.IPAHost
	}
	if fc.IPAUser != nil {
		config.IPAUser = *fc.IPAUser
	}
	if fc.IPAPass != nil {
		config.IPAPass = *fc.IPAPass
	}
	if fc.IPAVerifySSL != nil {
		config.IPAVerifySSL = *fc.IPAVerifySSL
	}
	if fc.Domain != nil {
		config.Domain = *fc.Domain
	}
	if fc.FinalizerName != nil {
		config.FinalizerName = *fc.FinalizerName
	}
	if len(fc.OSMap) > 0 {
		// File entries take precedence over the built-in table but do not
		// drop it: a preference the file does not know about still resolves.
		config.OSMap = append(fc.OSMap, config.OSMap...)
	}

	return config, nil
}

// Load assembles the process configuration: defaults, overridden by the
// optional YAML file, overridden by environment variables.
func Load() (Config, error) {
	path := os.Getenv(env.ConfigPath.String())
	if path == "" {
		path = DefaultConfigPath
	}

	config, err := FromFile(Default(), path)
	if err != nil {
		return config, err
	}
	return FromEnv(config), nil
}
