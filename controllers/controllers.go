// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package controllers

import (
	"fmt"

	ctrlmgr "sigs.k8s.io/controller-runtime/pkg/manager"

	pkgctx "github.com/virt-joiner/virt-joiner/pkg/context"
	"github.com/virt-joiner/virt-joiner/controllers/virtualmachine"
)

// AddToManager adds all controllers to the provided manager.
func AddToManager(ctx *pkgctx.ControllerManagerContext, mgr ctrlmgr.Manager) error {
	if err := virtualmachine.AddToManager(ctx, mgr); err != nil {
		return fmt.Errorf("failed to initialize VirtualMachine controller: %w", err)
	}
	return nil
}
