// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package env

import (
	"os"
)

// VarName is the name of an environment variable.
type VarName uint8

const (
	_varNameBegin VarName = iota

	IPAHost
	IPAUser
	IPAPass
	IPAVerifySSL
	Domain
	FinalizerName
	ConfigPath
	KeytabTimeout
	KeytabInterval
	MaxConcurrentReconciles
	LeaderElectionID
	PodNamespace
	PodName
	PodServiceAccountName
	WatchNamespace

	_varNameEnd
)

// Unset unsets all environment variables related to virt-joiner.
func Unset() {
	for _, n := range All() {
		_ = os.Unsetenv(n.String())
	}
}

// All returns all of the environment variable names.
func All() []VarName {
	all := make([]VarName, _varNameEnd-1)
	i := 0
	for n := _varNameBegin + 1; n < _varNameEnd; n++ {
		all[i] = n
		i++
	}
	return all
}

// String returns the environment variable for the given name.
func (n VarName) String() string {
	switch n {
	case IPAHost:
		return "IPA_HOST"
	case IPAUser:
		return "IPA_USER"
	case IPAPass:
		return "IPA_PASS"
	case IPAVerifySSL:
		return "IPA_VERIFY_SSL"
	case Domain:
		return "DOMAIN"
	case FinalizerName:
		return "FINALIZER_NAME"
	case ConfigPath:
		return "CONFIG_PATH"
	case KeytabTimeout:
		return "KEYTAB_TIMEOUT"
	case KeytabInterval:
		return "KEYTAB_INTERVAL"
	case MaxConcurrentReconciles:
		return "MAX_CONCURRENT_RECONCILES"
	case LeaderElectionID:
		return "LEADER_ELECTION_ID"
	case PodNamespace:
		return "POD_NAMESPACE"
	case PodName:
		return "POD_NAME"
	case PodServiceAccountName:
		return "POD_SERVICE_ACCOUNT_NAME"
	case WatchNamespace:
		return "WATCH_NAMESPACE"
	}
	panic("unknown environment variable")
}
