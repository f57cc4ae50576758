// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"fmt"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
)

// WebhookRequestContext is a Go context used with a webhook request.
type WebhookRequestContext struct {
	// WebhookContext is the context of the webhook that spawned this
	// request context.
	*WebhookContext

	// Obj is the resource associated with the webhook request.
	Obj *unstructured.Unstructured

	// UID is the unique identifier of the admission request. For create
	// requests it is also the seed for the host's one-time password, since
	// the object itself has no UID yet.
	UID types.UID

	// Namespace is the namespace the request targets.
	Namespace string

	// Logger is the logger associated with the webhook request.
	Logger logr.Logger
}

// String returns Obj.GroupVersionKind Obj.Namespace/Obj.Name.
func (c *WebhookRequestContext) String() string {
	return fmt.Sprintf("%s %s/%s", c.Obj.GroupVersionKind(), c.Obj.GetNamespace(), c.Obj.GetName())
}
