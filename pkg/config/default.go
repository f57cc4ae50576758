// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"time"
)

const (
	// DefaultInstallCommand is used when no OS table entry matches the VM's
	// preference name.
	DefaultInstallCommand = "dnf install -y ipa-client"

	debianInstallCommand = "export DEBIAN_FRONTEND=noninteractive && " +
		"apt-get update -y && apt-get install -y freeipa-client"
)

// Default returns a Config object with default values.
func Default() Config {
	return Config{
		IPAHost:       "ipa.example.com",
		IPAUser:       "admin",
		IPAPass:       "password",
		IPAVerifySSL:  false,
		Domain:        "example.com",
		FinalizerName: "ipa.enroll/cleanup",
		OSMap: []OSMapEntry{
			{Name: "ubuntu", Command: debianInstallCommand},
			{Name: "debian", Command: debianInstallCommand},
		},
		KeytabTimeout:           15 * time.Minute,
		KeytabInterval:          10 * time.Second,
		EventWaitAttempts:       5,
		EventWaitDelay:          2 * time.Second,
		LeaderElectionID:        "virt-joiner-controller-manager-runtime",
		MaxConcurrentReconciles: 1,
		PodName:                 "virt-joiner-controller-manager",
	}
}
