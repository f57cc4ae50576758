// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package ipa

import (
	"context"
	"fmt"
	"time"
)

// FQDN returns the directory host name for a VM: <name>.<namespace>.<domain>.
// The mapping is pure; it is recomputed wherever it is needed and never
// stored.
func FQDN(name, namespace, domain string) string {
	return fmt.Sprintf("%s.%s.%s", name, namespace, domain)
}

// Host is the subset of directory host attributes the operator reads.
type Host struct {
	FQDN string

	// HasKeytab is true once the guest's enrollment client has retrieved
	// its keytab, which is the completion signal for an enrollment.
	HasKeytab bool
}

func (c *Client) AddHost(ctx context.Context, fqdn, uid string) (string, string, error) {
	session, server, err := c.Connect(ctx)
	if err != nil {
		return "", "", err
	}

	// The VM's UID doubles as the bootstrap OTP: unique, already known to
	// the admission request, and consumed exactly once by the guest.
	otp := uid
	description := fmt.Sprintf("Created by virt-joiner at %s | K8s UID: %s",
		time.Now().UTC().Format("2006-01-02 15:04:05"), uid)

	c.logger.Info("Registering host", "fqdn", fqdn, "server", server)

	if _, err := session.Exec(ctx, "host_add", []string{fqdn}, map[string]any{
		"force":       true,
		"description": description,
	}); err != nil {
		c.logger.Error(err, "IPA host_add failed", "fqdn", fqdn)
		return "", "", err
	}

	if _, err := session.Exec(ctx, "host_mod", []string{fqdn}, map[string]any{
		"userpassword": otp,
	}); err != nil {
		c.logger.Error(err, "IPA host_mod failed", "fqdn", fqdn)
		return "", "", err
	}

	return otp, server, nil
}

func (c *Client) DeleteHost(ctx context.Context, fqdn string) error {
	session, _, err := c.Connect(ctx)
	if err != nil {
		return err
	}

	c.logger.Info("Deleting host", "fqdn", fqdn)

	if _, err := session.Exec(ctx, "host_del", []string{fqdn}, nil); err != nil {
		if IsNotFound(err) {
			c.logger.Info("Host already gone", "fqdn", fqdn)
			return nil
		}
		c.logger.Error(err, "IPA host_del failed", "fqdn", fqdn)
		return err
	}
	return nil
}

// ShowHost fetches the host record over an existing session. An empty
// result means the record is not ready yet, not that the lookup failed.
func ShowHost(ctx context.Context, session Session, fqdn string) (Host, error) {
	result, err := session.Exec(ctx, "host_show", []string{fqdn}, nil)
	if err != nil {
		return Host{}, err
	}

	host := Host{FQDN: fqdn}
	if result == nil || len(result.Attrs) == 0 {
		return host, nil
	}
	if v, ok := result.Attrs["has_keytab"].(bool); ok {
		host.HasKeytab = v
	}
	return host, nil
}
