// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package virtualmachine

import (
	ctrlmgr "sigs.k8s.io/controller-runtime/pkg/manager"

	pkgctx "github.com/virt-joiner/virt-joiner/pkg/context"
	"github.com/virt-joiner/virt-joiner/webhooks/virtualmachine/mutation"
)

// AddToManager adds the webhooks for the VirtualMachine resource to the
// provided manager.
func AddToManager(ctx *pkgctx.ControllerManagerContext, mgr ctrlmgr.Manager) error {
	return mutation.AddToManager(ctx, mgr)
}
