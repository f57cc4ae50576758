// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package builder

const (
	// AdmitMesgMalformedRequest is returned when a request carries no
	// object, or one that cannot be interpreted. Such requests are always
	// allowed untouched; admission must never block on input it cannot
	// read.
	AdmitMesgMalformedRequest = "Allowing request with no interpretable object"

	// AdmitMesgDeleteIgnored is returned for delete operations, which are
	// never mutated.
	AdmitMesgDeleteIgnored = "Allowing delete operation without mutation"
)
