// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package builder

import (
	goctx "context"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	admissionv1 "k8s.io/api/admission/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	"github.com/virt-joiner/virt-joiner/pkg/constants"
	pkgctx "github.com/virt-joiner/virt-joiner/pkg/context"
)

type stubMutator struct {
	gotNamespace string
	gotName      string
	gotUID       types.UID
	invoked      int
}

func (m *stubMutator) For() schema.GroupVersionKind {
	return constants.VirtualMachineGVK()
}

func (m *stubMutator) Mutate(ctx *pkgctx.WebhookRequestContext) admission.Response {
	m.invoked++
	m.gotNamespace = ctx.Namespace
	m.gotName = ctx.Obj.GetName()
	m.gotUID = ctx.UID
	return admission.Allowed("")
}

var _ = Describe("mutatingWebhookHandler", func() {
	var (
		mutator *stubMutator
		handler *mutatingWebhookHandler
	)

	newRequest := func(op admissionv1.Operation, raw []byte) admission.Request {
		return admission.Request{
			AdmissionRequest: admissionv1.AdmissionRequest{
				UID:       types.UID("req-uid"),
				Operation: op,
				Object:    runtime.RawExtension{Raw: raw},
			},
		}
	}

	BeforeEach(func() {
		mutator = &stubMutator{}
		handler = &mutatingWebhookHandler{
			WebhookContext: &pkgctx.WebhookContext{
				ControllerManagerContext: &pkgctx.ControllerManagerContext{
					Context: goctx.Background(),
					Logger:  logr.Discard(),
				},
				Name:   "default",
				Logger: logr.Discard(),
			},
			Decoder: admission.NewDecoder(runtime.NewScheme()),
			Mutator: mutator,
		}
	})

	It("ignores delete operations", func() {
		resp := handler.Handle(goctx.Background(), newRequest(admissionv1.Delete, nil))
		Expect(resp.Allowed).To(BeTrue())
		Expect(resp.Result.Message).To(Equal(AdmitMesgDeleteIgnored))
		Expect(mutator.invoked).To(BeZero())
	})

	It("admits requests without an object payload", func() {
		resp := handler.Handle(goctx.Background(), newRequest(admissionv1.Create, nil))
		Expect(resp.Allowed).To(BeTrue())
		Expect(resp.Result.Message).To(Equal(AdmitMesgMalformedRequest))
		Expect(mutator.invoked).To(BeZero())
	})

	It("admits requests whose payload does not decode", func() {
		resp := handler.Handle(goctx.Background(),
			newRequest(admissionv1.Create, []byte("{not json")))
		Expect(resp.Allowed).To(BeTrue())
		Expect(resp.Result.Message).To(Equal(AdmitMesgMalformedRequest))
		Expect(mutator.invoked).To(BeZero())
	})

	It("dispatches decoded objects to the mutator", func() {
		raw := []byte(`{
			"apiVersion": "kubevirt.io/v1",
			"kind": "VirtualMachine",
			"metadata": {"name": "web", "namespace": "prod"}
		}`)

		resp := handler.Handle(goctx.Background(), newRequest(admissionv1.Create, raw))
		Expect(resp.Allowed).To(BeTrue())
		Expect(mutator.invoked).To(Equal(1))
		Expect(mutator.gotName).To(Equal("web"))
		Expect(mutator.gotNamespace).To(Equal("prod"))
		Expect(mutator.gotUID).To(Equal(types.UID("req-uid")))
	})

	It("defaults the namespace when neither request nor object carry one", func() {
		raw := []byte(`{
			"apiVersion": "kubevirt.io/v1",
			"kind": "VirtualMachine",
			"metadata": {"name": "web"}
		}`)

		handler.Handle(goctx.Background(), newRequest(admissionv1.Create, raw))
		Expect(mutator.gotNamespace).To(Equal("default"))
	})
})

var _ = Describe("generateMutateName", func() {
	It("derives the webhook name from the mutated kind", func() {
		Expect(generateMutateName("default", constants.VirtualMachineGVK())).
			To(Equal("default-mutate-kubevirt-io-v1-virtualmachine"))
	})
})
