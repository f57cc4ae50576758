// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlmgr "sigs.k8s.io/controller-runtime/pkg/manager"

	"github.com/virt-joiner/virt-joiner/pkg/constants"
)

// EventUIDField is the field index AlreadyEmitted queries events by.
const EventUIDField = "involvedObject.uid"

// AddToManager indexes events by the UID of their involved object so the
// existence lookups stay cheap in namespaces with many events.
func AddToManager(ctx context.Context, mgr ctrlmgr.Manager) error {
	return mgr.GetFieldIndexer().IndexField(
		ctx,
		&corev1.Event{},
		EventUIDField,
		func(rawObj client.Object) []string {
			event := rawObj.(*corev1.Event)
			return []string{string(event.InvolvedObject.UID)}
		})
}

// Ref identifies the object an event is attached to.
type Ref struct {
	APIVersion string
	Kind       string
	Namespace  string
	Name       string
	UID        types.UID
}

// Recorder emits platform events for VirtualMachines. Emission is best
// effort everywhere: a dropped event is logged, never surfaced to the
// caller. Existence lookups double as the idempotency mechanism that keeps
// directory side effects from repeating after a controller restart.
type Recorder interface {
	// Emit writes one event attached to ref.
	Emit(ctx context.Context, ref Ref, reason, message, eventType string)

	// EmitWhenPersisted waits for the named VM to be persisted and acquire
	// a real UID before attaching the event to it. Used for events raised
	// at admission time, which race the object's own creation.
	EmitWhenPersisted(ctx context.Context, namespace, name, reason, message, eventType string)

	// AlreadyEmitted reports whether an event with the given reason already
	// exists for the object identified by uid. Lookup failures degrade to
	// false.
	AlreadyEmitted(ctx context.Context, namespace, uid, reason string) bool
}

// Options tunes the persisted-object wait loop.
type Options struct {
	// WaitAttempts is how many lookups EmitWhenPersisted performs before
	// dropping the event.
	WaitAttempts int

	// WaitDelay is slept before every lookup attempt.
	WaitDelay time.Duration
}

func defaulted(opts Options) Options {
	if opts.WaitAttempts <= 0 {
		opts.WaitAttempts = 5
	}
	if opts.WaitDelay <= 0 {
		opts.WaitDelay = 2 * time.Second
	}
	return opts
}

// New returns a Recorder backed by the given client.
func New(c client.Client, logger logr.Logger, opts Options) Recorder {
	return &recorder{
		client: c,
		logger: logger,
		opts:   defaulted(opts),
	}
}

type recorder struct {
	client client.Client
	logger logr.Logger
	opts   Options
}

func (r *recorder) Emit(ctx context.Context, ref Ref, reason, message, eventType string) {
	if ref.APIVersion == "" {
		ref.APIVersion = constants.VirtualMachineGVK().GroupVersion().String()
	}
	if ref.Kind == "" {
		ref.Kind = constants.VirtualMachineKind
	}

	now := metav1.NewTime(time.Now().UTC())
	event := &corev1.Event{
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: ref.Name + "-ipa-",
			Namespace:    ref.Namespace,
		},
		InvolvedObject: corev1.ObjectReference{
			APIVersion: ref.APIVersion,
			Kind:       ref.Kind,
			Namespace:  ref.Namespace,
			Name:       ref.Name,
			UID:        ref.UID,
		},
		Reason:  reason,
		Message: message,
		Type:    eventType,
		Source: corev1.EventSource{
			Component: constants.ComponentName,
		},
		FirstTimestamp: now,
		LastTimestamp:  now,
		Count:          1,
	}

	if err := r.client.Create(ctx, event); err != nil {
		r.logger.Error(err, "Failed to create event",
			"namespace", ref.Namespace, "name", ref.Name, "reason", reason)
	}
}

func (r *recorder) EmitWhenPersisted(ctx context.Context, namespace, name, reason, message, eventType string) {
	logger := r.logger.WithValues("namespace", namespace, "name", name, "reason", reason)
	logger.V(4).Info("Waiting for VM to be persisted before attaching event")

	for attempt := 0; attempt < r.opts.WaitAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.opts.WaitDelay):
		}

		vm := &unstructured.Unstructured{}
		vm.SetGroupVersionKind(constants.VirtualMachineGVK())
		err := r.client.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, vm)
		if apierrors.IsNotFound(err) {
			logger.V(4).Info("VM not found yet, retrying", "attempt", attempt+1)
			continue
		}
		if err != nil {
			logger.Error(err, "Failed to look up VM for delayed event")
			return
		}
		if vm.GetUID() == "" {
			continue
		}

		r.Emit(ctx, Ref{
			APIVersion: vm.GetAPIVersion(),
			Kind:       vm.GetKind(),
			Namespace:  namespace,
			Name:       name,
			UID:        vm.GetUID(),
		}, reason, message, eventType)
		return
	}

	logger.Info("Gave up waiting for VM to appear, event dropped")
}

func (r *recorder) AlreadyEmitted(ctx context.Context, namespace, uid, reason string) bool {
	events := &corev1.EventList{}
	if err := r.client.List(ctx, events,
		client.InNamespace(namespace),
		client.MatchingFields{EventUIDField: uid}); err != nil {
		r.logger.Error(err, "Failed to check existing events",
			"namespace", namespace, "reason", reason)
		return false
	}
	for i := range events.Items {
		if events.Items[i].Reason == reason {
			return true
		}
	}
	return false
}
