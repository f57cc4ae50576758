// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package virtualmachine_test

import (
	goctx "context"
	"sync"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/virt-joiner/virt-joiner/controllers/virtualmachine"
	pkgcfg "github.com/virt-joiner/virt-joiner/pkg/config"
	"github.com/virt-joiner/virt-joiner/pkg/constants"
	"github.com/virt-joiner/virt-joiner/pkg/record"
)

type fakeDeleter struct {
	mu    sync.Mutex
	fqdns []string
	err   error
}

func (d *fakeDeleter) DeleteHost(_ goctx.Context, fqdn string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fqdns = append(d.fqdns, fqdn)
	return d.err
}

func (d *fakeDeleter) deleted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.fqdns...)
}

type emittedEvent struct {
	UID     string
	Reason  string
	Message string
}

// fakeRecorder keeps emitted events in memory; AlreadyEmitted answers from
// that same memory, mirroring the event-existence idempotency contract.
type fakeRecorder struct {
	mu     sync.Mutex
	events []emittedEvent
}

func (r *fakeRecorder) Emit(_ goctx.Context, ref record.Ref, reason, message, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emittedEvent{string(ref.UID), reason, message})
}

func (r *fakeRecorder) EmitWhenPersisted(_ goctx.Context, _, _, reason, message, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emittedEvent{"", reason, message})
}

func (r *fakeRecorder) AlreadyEmitted(_ goctx.Context, _, uid, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.UID == uid && e.Reason == reason {
			return true
		}
	}
	return false
}

func (r *fakeRecorder) emitted() []emittedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]emittedEvent(nil), r.events...)
}

func newTestScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	Expect(clientgoscheme.AddToScheme(scheme)).To(Succeed())

	gvk := constants.VirtualMachineGVK()
	scheme.AddKnownTypeWithName(gvk, &unstructured.Unstructured{})
	scheme.AddKnownTypeWithName(gvk.GroupVersion().WithKind(gvk.Kind+"List"),
		&unstructured.UnstructuredList{})
	return scheme
}

var _ = Describe("Reconcile", func() {
	const (
		namespace = "prod"
		name      = "web"
		fqdn      = "web.prod.example.com"
		uid       = types.UID("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
	)

	var (
		ctx        goctx.Context
		config     pkgcfg.Config
		vm         *unstructured.Unstructured
		c          client.Client
		deleter    *fakeDeleter
		recorder   *fakeRecorder
		reconciler *virtualmachine.Reconciler
	)

	request := ctrl.Request{
		NamespacedName: types.NamespacedName{Namespace: namespace, Name: name},
	}

	newVM := func(finalizers []string, deleting bool) *unstructured.Unstructured {
		obj := &unstructured.Unstructured{}
		obj.SetGroupVersionKind(constants.VirtualMachineGVK())
		obj.SetNamespace(namespace)
		obj.SetName(name)
		obj.SetUID(uid)
		obj.SetFinalizers(finalizers)
		if deleting {
			now := metav1.Now()
			obj.SetDeletionTimestamp(&now)
		}
		return obj
	}

	BeforeEach(func() {
		ctx = goctx.Background()
		config = pkgcfg.Default()
		deleter = &fakeDeleter{}
		recorder = &fakeRecorder{}
		vm = newVM([]string{config.FinalizerName}, true)
	})

	JustBeforeEach(func() {
		c = fake.NewClientBuilder().
			WithScheme(newTestScheme()).
			WithObjects(vm).
			Build()
		reconciler = virtualmachine.NewReconciler(
			c, logr.Discard(), recorder, deleter, config)
	})

	vmExists := func() bool {
		obj := &unstructured.Unstructured{}
		obj.SetGroupVersionKind(constants.VirtualMachineGVK())
		err := c.Get(ctx, request.NamespacedName, obj)
		if apierrors.IsNotFound(err) {
			return false
		}
		Expect(err).ToNot(HaveOccurred())
		return true
	}

	Context("VM under deletion with the cleanup finalizer", func() {
		It("removes the host record, emits the event and drops the finalizer", func() {
			_, err := reconciler.Reconcile(ctx, request)
			Expect(err).ToNot(HaveOccurred())

			Expect(deleter.deleted()).To(Equal([]string{fqdn}))
			Expect(recorder.emitted()).To(ContainElement(emittedEvent{
				string(uid), constants.ReasonDeleteSuccess, "Removed host from IPA",
			}))

			// Dropping the last finalizer lets the apiserver finish the delete.
			Expect(vmExists()).To(BeFalse())
		})

		It("skips the directory call when cleanup already happened", func() {
			recorder.events = append(recorder.events, emittedEvent{
				string(uid), constants.ReasonDeleteSuccess, "Removed host from IPA",
			})

			_, err := reconciler.Reconcile(ctx, request)
			Expect(err).ToNot(HaveOccurred())
			Expect(deleter.deleted()).To(BeEmpty())
			Expect(vmExists()).To(BeFalse())
		})

		Context("and an unreachable directory", func() {
			BeforeEach(func() {
				deleter.err = errors.New("all IPA connection attempts failed")
			})

			It("keeps the finalizer and returns the error for backoff", func() {
				_, err := reconciler.Reconcile(ctx, request)
				Expect(err).To(HaveOccurred())

				Expect(vmExists()).To(BeTrue())
				Expect(recorder.emitted()).To(ContainElement(emittedEvent{
					string(uid), constants.ReasonDeleteFailed,
					"Failed: all IPA connection attempts failed",
				}))
			})

			It("does not repeat the failure event on retries", func() {
				_, err := reconciler.Reconcile(ctx, request)
				Expect(err).To(HaveOccurred())
				_, err = reconciler.Reconcile(ctx, request)
				Expect(err).To(HaveOccurred())

				failures := 0
				for _, e := range recorder.emitted() {
					if e.Reason == constants.ReasonDeleteFailed {
						failures++
					}
				}
				Expect(failures).To(Equal(1))
				Expect(deleter.deleted()).To(HaveLen(2))
			})
		})
	})

	Context("VM under deletion without the cleanup finalizer", func() {
		BeforeEach(func() {
			vm = newVM([]string{"some.other/finalizer"}, true)
		})

		It("is ignored", func() {
			_, err := reconciler.Reconcile(ctx, request)
			Expect(err).ToNot(HaveOccurred())
			Expect(deleter.deleted()).To(BeEmpty())
			Expect(recorder.emitted()).To(BeEmpty())
		})
	})

	Context("live VM carrying the finalizer", func() {
		BeforeEach(func() {
			vm = newVM([]string{config.FinalizerName}, false)
		})

		It("is left alone", func() {
			_, err := reconciler.Reconcile(ctx, request)
			Expect(err).ToNot(HaveOccurred())
			Expect(deleter.deleted()).To(BeEmpty())
			Expect(vmExists()).To(BeTrue())
		})
	})

	Context("VM that no longer exists", func() {
		It("is ignored", func() {
			_, err := reconciler.Reconcile(ctx,
				ctrl.Request{NamespacedName: types.NamespacedName{
					Namespace: namespace, Name: "gone",
				}})
			Expect(err).ToNot(HaveOccurred())
			Expect(deleter.deleted()).To(BeEmpty())
		})
	})
})
