// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package keytab

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"

	"github.com/virt-joiner/virt-joiner/pkg/constants"
	"github.com/virt-joiner/virt-joiner/pkg/ipa"
	"github.com/virt-joiner/virt-joiner/pkg/metrics"
	"github.com/virt-joiner/virt-joiner/pkg/record"
)

// Connector opens authenticated directory sessions; satisfied by
// *ipa.Client.
type Connector interface {
	Connect(ctx context.Context) (ipa.Session, string, error)
}

// Manager runs one keytab watcher per successful enrollment. It is added to
// the controller manager as a Runnable so that in-flight watchers are
// canceled and awaited during shutdown.
type Manager struct {
	connector Connector
	recorder  record.Recorder
	logger    logr.Logger
	metrics   *metrics.EnrollmentMetrics

	timeout  time.Duration
	interval time.Duration

	// base is the context every watcher runs under. It belongs to the
	// Manager, not to Start: the webhook serves admissions (and spawns
	// watchers) before the Runnable is started, e.g. while leader election
	// is pending, and those watchers must still honor shutdown.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager returns a watcher manager polling at the given interval until
// the given timeout.
func NewManager(connector Connector, recorder record.Recorder, logger logr.Logger, timeout, interval time.Duration) *Manager {
	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		connector: connector,
		recorder:  recorder,
		logger:    logger,
		metrics:   metrics.NewEnrollmentMetrics(),
		timeout:   timeout,
		interval:  interval,
		base:      base,
		cancel:    cancel,
	}
}

// Start implements manager.Runnable. It blocks until the manager's context
// is canceled, then cancels every watcher and waits for them to drain.
func (m *Manager) Start(ctx context.Context) error {
	<-ctx.Done()
	m.cancel()
	m.wg.Wait()
	return nil
}

// Watch spawns a watcher for the enrollment of the given VM. It never
// blocks the caller.
func (m *Manager) Watch(namespace, name, fqdn string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.watch(m.base, namespace, name, fqdn)
	}()
}

// watch polls host_show until the keytab appears or the deadline passes.
// A failed poll triggers a reconnect (fresh discovery included) before the
// next iteration instead of aborting the watch.
func (m *Manager) watch(ctx context.Context, namespace, name, fqdn string) {
	logger := m.logger.WithValues("namespace", namespace, "name", name, "fqdn", fqdn)
	logger.Info("Starting keytab watcher", "timeout", m.timeout)

	session, _, err := m.connector.Connect(ctx)
	if err != nil {
		logger.Error(err, "Failed to create IPA session for keytab polling")
		m.metrics.RecordKeytabWait(metrics.ResultFailure)
		return
	}

	deadline := time.Now().Add(m.timeout)
	for time.Now().Before(deadline) {
		host, err := ipa.ShowHost(ctx, session, fqdn)
		switch {
		case err == nil && host.HasKeytab:
			logger.Info("Keytab detected, enrollment complete")
			m.metrics.RecordKeytabWait(metrics.ResultSuccess)
			m.recorder.EmitWhenPersisted(ctx, namespace, name,
				constants.ReasonEnrollComplete,
				"Host keytab found in IPA - client installation successful",
				corev1.EventTypeNormal)
			return
		case err != nil:
			logger.Info("Keytab poll failed, reconnecting", "error", err.Error())
			if fresh, _, rerr := m.connector.Connect(ctx); rerr != nil {
				logger.Error(rerr, "Failed to reconnect during keytab polling")
			} else {
				session = fresh
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.interval):
		}
	}

	logger.Info("Keytab watcher timed out")
	m.metrics.RecordKeytabWait(metrics.ResultTimeout)
	m.recorder.EmitWhenPersisted(ctx, namespace, name,
		constants.ReasonEnrollTimeout,
		"Timed out waiting for keytab. VM may have failed to boot or enroll.",
		corev1.EventTypeWarning)
}
