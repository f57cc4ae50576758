// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/virt-joiner/virt-joiner/pkg/config/env"
)

// FromEnv returns the provided Config overridden by any environment
// variables that are set.
func FromEnv(config Config) Config {
	setString(env.IPAHost, &config.IPAHost)
	setString(env.IPAUser, &config.IPAUser)
	setString(env.IPAPass, &config.IPAPass)
	setBool(env.IPAVerifySSL, &config.IPAVerifySSL)
	setString(env.Domain, &config.Domain)
	setString(env.FinalizerName, &config.FinalizerName)
	setDuration(env.KeytabTimeout, &config.KeytabTimeout)
	setDuration(env.KeytabInterval, &config.KeytabInterval)
	setInt(env.MaxConcurrentReconciles, &config.MaxConcurrentReconciles)
	setString(env.LeaderElectionID, &config.LeaderElectionID)
	setString(env.PodNamespace, &config.PodNamespace)
	setString(env.PodName, &config.PodName)
	setString(env.PodServiceAccountName, &config.PodServiceAccountName)
	setString(env.WatchNamespace, &config.WatchNamespace)

	return config
}

func setBool(n env.VarName, p *bool) {
	if v := os.Getenv(n.String()); v != "" {
		if v, err := strconv.ParseBool(v); err == nil {
			*p = v
		}
	}
}

func setInt(n env.VarName, p *int) {
	if v := os.Getenv(n.String()); v != "" {
		if v, err := strconv.Atoi(v); err == nil {
			*p = v
		}
	}
}

func setDuration(n env.VarName, p *time.Duration) {
	if v := os.Getenv(n.String()); v != "" {
		if v, err := time.ParseDuration(v); err == nil {
			*p = v
		}
	}
}

func setString(n env.VarName, p *string) {
	if v := os.Getenv(n.String()); v != "" {
		*p = v
	}
}
