// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package constants

import (
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const (
	// ComponentName is the source component recorded on emitted events.
	ComponentName = "virt-joiner"

	// EnrollLabelKey is the label that opts a VirtualMachine (or its
	// instance type) into IPA enrollment.
	EnrollLabelKey = "ipa-enroll"

	// TrueString is the value EnrollLabelKey must carry to opt in.
	TrueString = "true"

	// StatusAnnotationKey records the enrollment outcome on success.
	StatusAnnotationKey = "ipa-enroll/status"

	// ErrorAnnotationKey records the enrollment failure reason.
	ErrorAnnotationKey = "ipa-enroll/error"

	// CloudInitVolumeName is the well-known name of the cloud-init volume
	// and its matching disk device.
	CloudInitVolumeName = "cloudinitdisk"
)

// Event reasons. ReasonDeleteSuccess doubles as the idempotency key that
// prevents a second host_del after a controller restart, so its value must
// remain stable across versions.
const (
	ReasonEnrollSuccess  = "IPAEnrollSuccess"
	ReasonEnrollFailed   = "IPAEnrollFailed"
	ReasonEnrollComplete = "IPAEnrollmentComplete"
	ReasonEnrollTimeout  = "IPAEnrollmentTimeout"
	ReasonDeleteSuccess  = "IPADeleteSuccess"
	ReasonDeleteFailed   = "IPADeleteFailed"
)

const (
	// VirtualMachineKind is the resource kind this operator watches and
	// mutates.
	VirtualMachineKind = "VirtualMachine"

	// ClusterInstanceTypeKind is the default kind of a VM's instancetype
	// reference when none is given.
	ClusterInstanceTypeKind = "VirtualMachineClusterInstanceType"

	// NamespacedInstanceTypeKind is the namespace-scoped instancetype kind.
	NamespacedInstanceTypeKind = "VirtualMachineInstanceType"
)

// VirtualMachineGVK returns the GroupVersionKind of the KubeVirt
// VirtualMachine resource.
func VirtualMachineGVK() schema.GroupVersionKind {
	return schema.GroupVersionKind{
		Group:   "kubevirt.io",
		Version: "v1",
		Kind:    VirtualMachineKind,
	}
}

// InstanceTypeGVK returns the GroupVersionKind for the given instancetype
// reference kind, defaulting to the cluster-scoped kind.
func InstanceTypeGVK(kind string) schema.GroupVersionKind {
	if kind == "" {
		kind = ClusterInstanceTypeKind
	}
	return schema.GroupVersionKind{
		Group:   "instancetype.kubevirt.io",
		Version: "v1beta1",
		Kind:    kind,
	}
}
