// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package mutation

import (
	goctx "context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"gomodules.xyz/jsonpatch/v2"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlmgr "sigs.k8s.io/controller-runtime/pkg/manager"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	"github.com/virt-joiner/virt-joiner/pkg/builder"
	pkgcfg "github.com/virt-joiner/virt-joiner/pkg/config"
	"github.com/virt-joiner/virt-joiner/pkg/constants"
	pkgctx "github.com/virt-joiner/virt-joiner/pkg/context"
	"github.com/virt-joiner/virt-joiner/pkg/ipa"
	"github.com/virt-joiner/virt-joiner/pkg/metrics"
)

const (
	webHookName = "default"

	// maxHostNameLength is the Linux HOST_NAME_MAX limit; an FQDN past it
	// can never enroll, so such VMs are rejected outright.
	maxHostNameLength = 64
)

// AddToManager adds the webhook to the provided manager.
func AddToManager(ctx *pkgctx.ControllerManagerContext, mgr ctrlmgr.Manager) error {
	hook, err := builder.NewMutatingWebhook(ctx, mgr, webHookName,
		NewMutator(mgr.GetClient(), ctx.Config, ctx.IPA, ctx.Keytab))
	if err != nil {
		return errors.Wrapf(err, "failed to create mutation webhook")
	}
	mgr.GetWebhookServer().Register(hook.Path, hook)

	return nil
}

// Enroller pre-creates directory host records; satisfied by *ipa.Client.
type Enroller interface {
	AddHost(ctx goctx.Context, fqdn, uid string) (otp string, server string, err error)
}

// Watcher schedules keytab watchers; satisfied by *keytab.Manager.
type Watcher interface {
	Watch(namespace, name, fqdn string)
}

// NewMutator returns the package's Mutator.
func NewMutator(client client.Client, config pkgcfg.Config, enroller Enroller, watcher Watcher) builder.Mutator {
	return mutator{
		client:   client,
		config:   config,
		enroller: enroller,
		watcher:  watcher,
		metrics:  metrics.NewEnrollmentMetrics(),
	}
}

type mutator struct {
	client   client.Client
	config   pkgcfg.Config
	enroller Enroller
	watcher  Watcher
	metrics  *metrics.EnrollmentMetrics
}

func (m mutator) For() schema.GroupVersionKind {
	return constants.VirtualMachineGVK()
}

// Mutate handles one admission request. Enrollment failures never reject
// the VM: the guest can still be enrolled later by hand, so failures are
// surfaced through events and annotations instead. The only rejection is
// the FQDN length limit, which no amount of remediation can fix.
func (m mutator) Mutate(ctx *pkgctx.WebhookRequestContext) admission.Response {
	name := ctx.Obj.GetName()
	if name == "" {
		return admission.Allowed(builder.AdmitMesgMalformedRequest)
	}

	fqdn := ipa.FQDN(name, ctx.Namespace, m.config.Domain)
	if len(fqdn) > maxHostNameLength {
		msg := fmt.Sprintf("Generated FQDN '%s' is %d chars. Max allowed is %d.",
			fqdn, len(fqdn), maxHostNameLength)
		ctx.Logger.Info("Rejecting VirtualMachine", "reason", msg)
		return admission.Errored(http.StatusBadRequest, errors.New(msg))
	}

	if !m.shouldEnroll(ctx) {
		return admission.Allowed("")
	}

	otp, server, err := m.enroller.AddHost(ctx, fqdn, string(ctx.UID))
	if err != nil {
		m.metrics.RecordEnrollment(metrics.ResultFailure)
		ctx.Logger.Error(err, "IPA enrollment failed", "fqdn", fqdn)

		go ctx.Recorder.EmitWhenPersisted(ctx, ctx.Namespace, name,
			constants.ReasonEnrollFailed,
			"Failed to pre-create host in IPA: "+err.Error(),
			corev1.EventTypeWarning)

		return admission.Patched("",
			annotationPatch(ctx.Obj, constants.ErrorAnnotationKey, "Failed: "+err.Error()))
	}

	m.metrics.RecordEnrollment(metrics.ResultSuccess)
	ctx.Logger.Info("Pre-created IPA host", "fqdn", fqdn, "server", server)

	go ctx.Recorder.EmitWhenPersisted(ctx, ctx.Namespace, name,
		constants.ReasonEnrollSuccess,
		fmt.Sprintf("Successfully pre-created host %s in IPA", fqdn),
		corev1.EventTypeNormal)
	m.watcher.Watch(ctx.Namespace, name, fqdn)

	patches, err := m.enrollmentPatches(ctx.Obj, name, fqdn, otp, server)
	if err != nil {
		// The host record exists at this point; losing the patch only costs
		// the first-boot script, which an operator can supply manually.
		ctx.Logger.Error(err, "Failed to build enrollment patch, allowing unmodified")
		return admission.Allowed("")
	}

	return admission.Patched("", patches...)
}

// enrollmentPatches assembles the full JSON Patch for a successful
// enrollment: the first-boot script, the cleanup finalizer, and the status
// annotation.
func (m mutator) enrollmentPatches(
	obj *unstructured.Unstructured,
	name, fqdn, otp, server string) ([]jsonpatch.JsonPatchOperation, error) {

	install := m.config.InstallCommandFor(preferenceName(obj))
	join := joinCommand(server, fqdn, m.config.Domain, m.config.Realm(), otp)

	patches, err := cloudInitPatches(obj, name, fqdn, []string{install, join})
	if err != nil {
		return nil, err
	}
	patches = append(patches, finalizerPatch(obj, m.config.FinalizerName))
	patches = append(patches, annotationPatch(obj, constants.StatusAnnotationKey, "Enrolled as "+fqdn))
	return patches, nil
}

// preferenceName returns the VM's requested preference name, used for OS
// detection.
func preferenceName(obj *unstructured.Unstructured) string {
	name, _, _ := unstructured.NestedString(obj.Object, "spec", "preference", "name")
	return name
}

// joinCommand renders the unattended first-boot enrollment command,
// embedding the server the directory client actually connected to.
func joinCommand(server, fqdn, domain, realm, otp string) string {
	return fmt.Sprintf(
		"ipa-client-install --server=%s --hostname=%s --domain=%s --realm=%s "+
			"--password='%s' --mkhomedir --unattended --no-ntp",
		server, fqdn, domain, realm, otp)
}
