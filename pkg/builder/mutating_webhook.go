// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package builder

import (
	goctx "context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	admissionv1 "k8s.io/api/admission/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	ctrlmgr "sigs.k8s.io/controller-runtime/pkg/manager"
	"sigs.k8s.io/controller-runtime/pkg/webhook"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	pkgctx "github.com/virt-joiner/virt-joiner/pkg/context"
)

// MutatingWebhook is an admissions webhook that mutates VirtualMachine
// resources.
type MutatingWebhook struct {
	admission.Webhook

	// Name is the name of the webhook.
	Name string

	// Path is the path of the webhook.
	Path string
}

// Mutator is used to create a new admissions webhook for mutating requests.
type Mutator interface {
	// For returns the GroupVersionKind for which this webhook mutates requests.
	For() schema.GroupVersionKind

	// Mutate returns the admission response for the request.
	Mutate(*pkgctx.WebhookRequestContext) admission.Response
}

// NewMutatingWebhook returns a new admissions webhook for mutating requests.
func NewMutatingWebhook(
	ctx *pkgctx.ControllerManagerContext,
	mgr ctrlmgr.Manager,
	webhookName string,
	mutator Mutator) (*MutatingWebhook, error) {

	if webhookName == "" {
		return nil, errors.New("webhookName arg is empty")
	}
	if mutator == nil {
		return nil, errors.New("mutator arg is nil")
	}

	webhookNameShort := generateMutateName(webhookName, mutator.For())
	webhookPath := "/" + webhookNameShort

	// Build the WebhookContext.
	webhookContext := &pkgctx.WebhookContext{
		ControllerManagerContext: ctx,
		Name:                     webhookNameShort,
		Recorder:                 ctx.Recorder,
		Logger:                   ctx.Logger.WithName(webhookNameShort),
	}

	return &MutatingWebhook{
		Name: webhookNameShort,
		Path: webhookPath,
		Webhook: webhook.Admission{
			Handler: &mutatingWebhookHandler{
				Decoder:        admission.NewDecoder(mgr.GetScheme()),
				WebhookContext: webhookContext,
				Mutator:        mutator,
			},
		},
	}, nil
}

var _ admission.Handler = &mutatingWebhookHandler{}

type mutatingWebhookHandler struct {
	*pkgctx.WebhookContext
	admission.Decoder
	Mutator
}

func (h *mutatingWebhookHandler) Handle(_ goctx.Context, req admission.Request) admission.Response {
	if h.Mutator == nil {
		panic("mutator should never be nil")
	}

	if req.Operation == admissionv1.Delete {
		return admission.Allowed(AdmitMesgDeleteIgnored)
	}
	if len(req.Object.Raw) == 0 {
		return admission.Allowed(AdmitMesgMalformedRequest)
	}

	obj := &unstructured.Unstructured{}
	if err := h.DecodeRaw(req.Object, obj); err != nil {
		h.WebhookContext.Logger.Error(err, "Failed to decode admitted object, allowing unmodified")
		return admission.Allowed(AdmitMesgMalformedRequest)
	}

	namespace := req.Namespace
	if namespace == "" {
		namespace = obj.GetNamespace()
	}
	if namespace == "" {
		namespace = metav1.NamespaceDefault
	}

	webhookRequestContext := &pkgctx.WebhookRequestContext{
		WebhookContext: h.WebhookContext,
		Obj:            obj,
		UID:            req.UID,
		Namespace:      namespace,
		Logger:         h.WebhookContext.Logger.WithName(namespace).WithName(obj.GetName()),
	}

	return h.Mutate(webhookRequestContext)
}

func generateMutateName(webhookName string, gvk schema.GroupVersionKind) string {
	return fmt.Sprintf("%s-mutate-", webhookName) +
		strings.ReplaceAll(gvk.Group, ".", "-") + "-" +
		gvk.Version + "-" + strings.ToLower(gvk.Kind)
}
