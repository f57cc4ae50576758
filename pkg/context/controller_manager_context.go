// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"context"

	"github.com/go-logr/logr"

	pkgcfg "github.com/virt-joiner/virt-joiner/pkg/config"
	"github.com/virt-joiner/virt-joiner/pkg/ipa"
	"github.com/virt-joiner/virt-joiner/pkg/keytab"
	"github.com/virt-joiner/virt-joiner/pkg/record"
)

// ControllerManagerContext is the context of the controller manager that
// owns the controllers and webhooks.
type ControllerManagerContext struct {
	context.Context

	// Namespace is the namespace in which the controller manager's pod runs.
	Namespace string

	// Name is the name of the controller manager.
	Name string

	// ServiceAccountName is the name of the pod's service account.
	ServiceAccountName string

	// LeaderElectionID identifies the object used to synchronize leader
	// election.
	LeaderElectionID string

	// WatchNamespace is the namespace the controllers watch for changes. If
	// no value is specified then all namespaces are watched.
	WatchNamespace string

	// MaxConcurrentReconciles is the maximum number of reconcile requests a
	// controller will process concurrently.
	MaxConcurrentReconciles int

	// Config is the immutable process configuration snapshot.
	Config pkgcfg.Config

	// IPA is the directory-service client.
	IPA ipa.Interface

	// Keytab schedules per-enrollment keytab watchers.
	Keytab *keytab.Manager

	// Recorder is used to record events.
	Recorder record.Recorder

	// Logger is the controller manager's logger.
	Logger logr.Logger
}

// String returns Namespace/Name.
func (c *ControllerManagerContext) String() string {
	return c.Namespace + "/" + c.Name
}
