// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package mutation

import (
	"fmt"
	"strings"

	"gomodules.xyz/jsonpatch/v2"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"

	"github.com/virt-joiner/virt-joiner/pkg/constants"
)

const (
	cloudConfigHeader = "#cloud-config\n"

	volumesPath = "/spec/template/spec/volumes"
	disksPath   = "/spec/template/spec/domain/devices/disks"
)

// buildUserData appends the enrollment commands to the cloud-config
// document in userData and pins hostname, fqdn and hosts management. An
// empty or unparseable document starts fresh; everything else the user put
// there is preserved.
func buildUserData(userData, hostname, fqdn string, commands []string) (string, error) {
	doc := map[string]any{}
	if strings.TrimSpace(userData) != "" {
		if err := yaml.Unmarshal([]byte(userData), &doc); err != nil || doc == nil {
			doc = map[string]any{}
		}
	}

	runcmd, _ := doc["runcmd"].([]any)
	for _, c := range commands {
		runcmd = append(runcmd, c)
	}
	doc["runcmd"] = runcmd
	doc["hostname"] = hostname
	doc["fqdn"] = fqdn
	doc["manage_etc_hosts"] = true

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", err
	}
	return cloudConfigHeader + string(out), nil
}

// cloudInitPatches produces the patch operations that place the first-boot
// script on the VM: either rewriting the existing cloudinitdisk volume's
// user data in place, or adding a fresh volume (and, if needed, its disk
// device) when none exists.
func cloudInitPatches(obj *unstructured.Unstructured, name, fqdn string, commands []string) ([]jsonpatch.JsonPatchOperation, error) {
	volumes, volumesFound, _ := unstructured.NestedSlice(obj.Object,
		"spec", "template", "spec", "volumes")

	for i, v := range volumes {
		vol, ok := v.(map[string]any)
		if !ok || vol["name"] != constants.CloudInitVolumeName {
			continue
		}

		var userData string
		if ci, ok := vol["cloudInitNoCloud"].(map[string]any); ok {
			userData, _ = ci["userData"].(string)
		}
		newUserData, err := buildUserData(userData, name, fqdn, commands)
		if err != nil {
			return nil, err
		}
		return []jsonpatch.JsonPatchOperation{
			jsonpatch.NewOperation("replace",
				fmt.Sprintf("%s/%d/cloudInitNoCloud/userData", volumesPath, i),
				newUserData),
		}, nil
	}

	userData, err := buildUserData("", name, fqdn, commands)
	if err != nil {
		return nil, err
	}
	volume := map[string]any{
		"name": constants.CloudInitVolumeName,
		"cloudInitNoCloud": map[string]any{
			"userData": userData,
		},
	}

	var patches []jsonpatch.JsonPatchOperation
	if volumesFound {
		patches = append(patches, jsonpatch.NewOperation("add", volumesPath+"/-", volume))
	} else {
		patches = append(patches, jsonpatch.NewOperation("add", volumesPath, []any{volume}))
	}

	if patch, ok := diskDevicePatch(obj); ok {
		patches = append(patches, patch)
	}
	return patches, nil
}

// diskDevicePatch adds the virtio disk device backing the cloud-init
// volume, unless one of that name is already declared.
func diskDevicePatch(obj *unstructured.Unstructured) (jsonpatch.JsonPatchOperation, bool) {
	disks, disksFound, _ := unstructured.NestedSlice(obj.Object,
		"spec", "template", "spec", "domain", "devices", "disks")

	for _, d := range disks {
		disk, ok := d.(map[string]any)
		if ok && disk["name"] == constants.CloudInitVolumeName {
			return jsonpatch.JsonPatchOperation{}, false
		}
	}

	device := map[string]any{
		"name": constants.CloudInitVolumeName,
		"disk": map[string]any{"bus": "virtio"},
	}
	if disksFound {
		return jsonpatch.NewOperation("add", disksPath+"/-", device), true
	}
	return jsonpatch.NewOperation("add", disksPath, []any{device}), true
}

// finalizerPatch appends the cleanup finalizer, creating the list when the
// object has none.
func finalizerPatch(obj *unstructured.Unstructured, token string) jsonpatch.JsonPatchOperation {
	if len(obj.GetFinalizers()) > 0 {
		return jsonpatch.NewOperation("add", "/metadata/finalizers/-", token)
	}
	return jsonpatch.NewOperation("add", "/metadata/finalizers", []string{token})
}

// annotationPatch records the enrollment outcome, creating the annotation
// map when the object has none.
func annotationPatch(obj *unstructured.Unstructured, key, value string) jsonpatch.JsonPatchOperation {
	if len(obj.GetAnnotations()) > 0 {
		return jsonpatch.NewOperation("add", "/metadata/annotations/"+escapeJSONPointer(key), value)
	}
	return jsonpatch.NewOperation("add", "/metadata/annotations", map[string]string{key: value})
}

// escapeJSONPointer escapes a map key for use in a JSON pointer path
// (RFC 6901).
func escapeJSONPointer(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "~", "~0"), "/", "~1")
}
