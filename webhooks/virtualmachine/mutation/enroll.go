// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package mutation

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/virt-joiner/virt-joiner/pkg/constants"
	pkgctx "github.com/virt-joiner/virt-joiner/pkg/context"
)

// shouldEnroll decides whether the admitted VM opts into IPA enrollment:
// either through its own label, or by inheriting the label from its
// referenced instance type. Enrollment is opt-in, so any failure to confirm
// inheritance degrades to false rather than blocking or enrolling.
func (m mutator) shouldEnroll(ctx *pkgctx.WebhookRequestContext) bool {
	if ctx.Obj.GetLabels()[constants.EnrollLabelKey] == constants.TrueString {
		return true
	}

	itName, _, _ := unstructured.NestedString(ctx.Obj.Object, "spec", "instancetype", "name")
	if itName == "" {
		return false
	}
	itKind, _, _ := unstructured.NestedString(ctx.Obj.Object, "spec", "instancetype", "kind")

	gvk := constants.InstanceTypeGVK(itKind)
	ctx.Logger.V(4).Info("Checking instance type for label inheritance",
		"instancetype", itName, "kind", gvk.Kind)

	instanceType := &unstructured.Unstructured{}
	instanceType.SetGroupVersionKind(gvk)

	key := client.ObjectKey{Name: itName}
	if gvk.Kind == constants.NamespacedInstanceTypeKind {
		key.Namespace = ctx.Namespace
	}

	if err := m.client.Get(ctx, key, instanceType); err != nil {
		ctx.Logger.Info("Failed to look up instance type, not enrolling",
			"instancetype", itName, "error", err.Error())
		return false
	}

	if instanceType.GetLabels()[constants.EnrollLabelKey] == constants.TrueString {
		ctx.Logger.Info("Inherited enrollment label from instance type", "instancetype", itName)
		return true
	}
	return false
}
