// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"strings"
	"time"
)

// Config represents the internal configuration of virt-joiner. It is loaded
// once at startup and treated as an immutable snapshot for the lifetime of
// the process.
type Config struct {
	// IPAHost is the statically configured IPA server, used as a fallback
	// after DNS SRV discovery. Multiple hosts may be given as a
	// comma-separated list.
	IPAHost string

	// IPAUser and IPAPass are the service account used to authenticate
	// against the IPA API.
	IPAUser string
	IPAPass string

	// IPAVerifySSL toggles TLS certificate verification of the IPA servers.
	IPAVerifySSL bool

	// Domain is the directory domain. A VM named "web" in namespace "prod"
	// enrolls as web.prod.<Domain>.
	Domain string

	// FinalizerName is the finalizer token managed on enrolled
	// VirtualMachines.
	FinalizerName string

	// OSMap maps an operating system name, matched as a case-insensitive
	// substring of the VM's preference name, to the command that installs
	// the IPA client on that OS. Entries are tried in order and the first
	// match wins.
	OSMap []OSMapEntry

	// KeytabTimeout bounds how long a keytab watcher polls IPA for the
	// enrollment of a single VM before giving up.
	KeytabTimeout time.Duration

	// KeytabInterval is the sleep between keytab poll iterations.
	KeytabInterval time.Duration

	// EventWaitAttempts and EventWaitDelay control how long an event emitted
	// at admission time waits for the VM object to be persisted.
	EventWaitAttempts int
	EventWaitDelay    time.Duration

	LeaderElectionID        string
	MaxConcurrentReconciles int

	PodNamespace          string
	PodName               string
	PodServiceAccountName string

	// WatchNamespace is the namespace the controllers watch for changes. If
	// no value is specified then all namespaces are watched.
	WatchNamespace string
}

// OSMapEntry is one row of the ordered OS-to-install-command table.
type OSMapEntry struct {
	Name    string `json:"name"`
	Command string `json:"command"`
}

// Realm returns the Kerberos realm, which is the upper-cased domain.
func (c Config) Realm() string {
	return strings.ToUpper(c.Domain)
}

// StaticHosts splits the comma-separated IPAHost value into individual,
// trimmed hostnames, dropping empty entries.
func (c Config) StaticHosts() []string {
	var hosts []string
	for _, h := range strings.Split(c.IPAHost, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// InstallCommandFor resolves the IPA client install command for the given VM
// preference name. The OS table is consulted in order and the first entry
// whose name is contained in the preference name wins; unmatched preferences
// fall back to the generic installer.
func (c Config) InstallCommandFor(preferenceName string) string {
	pref := strings.ToLower(preferenceName)
	for _, entry := range c.OSMap {
		if entry.Name != "" && strings.Contains(pref, strings.ToLower(entry.Name)) {
			return entry.Command
		}
	}
	return DefaultInstallCommand
}
