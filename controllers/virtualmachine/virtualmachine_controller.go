// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package virtualmachine

import (
	goctx "context"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	pkgcfg "github.com/virt-joiner/virt-joiner/pkg/config"
	"github.com/virt-joiner/virt-joiner/pkg/constants"
	pkgctx "github.com/virt-joiner/virt-joiner/pkg/context"
	"github.com/virt-joiner/virt-joiner/pkg/ipa"
	"github.com/virt-joiner/virt-joiner/pkg/metrics"
	"github.com/virt-joiner/virt-joiner/pkg/record"
)

// AddToManager adds this package's controller to the provided manager.
func AddToManager(ctx *pkgctx.ControllerManagerContext, mgr manager.Manager) error {
	controlledType := &unstructured.Unstructured{}
	controlledType.SetGroupVersionKind(constants.VirtualMachineGVK())

	r := NewReconciler(
		mgr.GetClient(),
		ctrl.Log.WithName("controllers").WithName(constants.VirtualMachineKind),
		ctx.Recorder,
		ctx.IPA,
		ctx.Config,
	)

	return ctrl.NewControllerManagedBy(mgr).
		For(controlledType).
		WithOptions(controller.Options{MaxConcurrentReconciles: ctx.MaxConcurrentReconciles}).
		Complete(r)
}

// HostDeleter removes directory host records; satisfied by *ipa.Client.
type HostDeleter interface {
	DeleteHost(ctx goctx.Context, fqdn string) error
}

// NewReconciler returns the deletion reconciler.
func NewReconciler(
	client client.Client,
	logger logr.Logger,
	recorder record.Recorder,
	deleter HostDeleter,
	config pkgcfg.Config) *Reconciler {

	return &Reconciler{
		Client:   client,
		Logger:   logger,
		Recorder: recorder,
		Deleter:  deleter,
		Config:   config,
		metrics:  metrics.NewEnrollmentMetrics(),
	}
}

// Reconciler tears down the directory side of a VM that is being deleted.
// It only ever acts on objects that carry this operator's finalizer and a
// deletion timestamp; everything else is not its concern.
type Reconciler struct {
	client.Client
	Logger   logr.Logger
	Recorder record.Recorder
	Deleter  HostDeleter
	Config   pkgcfg.Config

	metrics *metrics.EnrollmentMetrics
}

func (r *Reconciler) Reconcile(ctx goctx.Context, req ctrl.Request) (ctrl.Result, error) {
	vm := &unstructured.Unstructured{}
	vm.SetGroupVersionKind(constants.VirtualMachineGVK())
	if err := r.Get(ctx, req.NamespacedName, vm); err != nil {
		if apierrors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	if !controllerutil.ContainsFinalizer(vm, r.Config.FinalizerName) {
		return ctrl.Result{}, nil
	}
	if vm.GetDeletionTimestamp().IsZero() {
		return ctrl.Result{}, nil
	}

	logger := r.Logger.WithValues("namespace", req.Namespace, "name", req.Name)
	uid := string(vm.GetUID())
	ref := record.Ref{
		APIVersion: vm.GetAPIVersion(),
		Kind:       vm.GetKind(),
		Namespace:  req.Namespace,
		Name:       req.Name,
		UID:        vm.GetUID(),
	}
	fqdn := ipa.FQDN(req.Name, req.Namespace, r.Config.Domain)

	// The existence of a delete-success event is the durable record that
	// the directory side effect already happened; a local cache would not
	// survive a controller restart.
	if r.Recorder.AlreadyEmitted(ctx, req.Namespace, uid, constants.ReasonDeleteSuccess) {
		logger.V(4).Info("Cleanup already performed, removing finalizer only")
		return ctrl.Result{}, r.removeFinalizer(ctx, logger, vm)
	}

	logger.Info("Processing deletion", "fqdn", fqdn)

	if err := r.Deleter.DeleteHost(ctx, fqdn); err != nil {
		r.metrics.RecordHostDeletion(metrics.ResultFailure)
		logger.Error(err, "Failed to delete IPA host", "fqdn", fqdn)
		if !r.Recorder.AlreadyEmitted(ctx, req.Namespace, uid, constants.ReasonDeleteFailed) {
			r.Recorder.Emit(ctx, ref, constants.ReasonDeleteFailed,
				"Failed: "+err.Error(), corev1.EventTypeWarning)
		}
		// The finalizer stays until the host record is gone, keeping the VM
		// undeletable and the cleanup at-least-once.
		return ctrl.Result{}, err
	}

	r.metrics.RecordHostDeletion(metrics.ResultSuccess)
	r.Recorder.Emit(ctx, ref, constants.ReasonDeleteSuccess,
		"Removed host from IPA", corev1.EventTypeNormal)

	return ctrl.Result{}, r.removeFinalizer(ctx, logger, vm)
}

func (r *Reconciler) removeFinalizer(ctx goctx.Context, logger logr.Logger, vm *unstructured.Unstructured) error {
	if !controllerutil.RemoveFinalizer(vm, r.Config.FinalizerName) {
		return nil
	}
	if err := r.Update(ctx, vm); err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		logger.Error(err, "Finalizer removal failed")
		return err
	}
	logger.Info("Removed finalizer")
	return nil
}
