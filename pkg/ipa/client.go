// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package ipa

import (
	"context"
	"net"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	apierrorsutil "k8s.io/apimachinery/pkg/util/errors"

	pkgcfg "github.com/virt-joiner/virt-joiner/pkg/config"
)

// Interface is the directory-facing surface consumed by the webhook, the
// deletion reconciler and the keytab watchers.
type Interface interface {
	// Connect authenticates against the first reachable IPA server and
	// returns the session together with the host it connected to.
	Connect(ctx context.Context) (Session, string, error)

	// AddHost pre-creates the directory host record for fqdn and sets its
	// one-time password. It returns the password and the server that issued
	// it.
	AddHost(ctx context.Context, fqdn, uid string) (otp string, server string, err error)

	// DeleteHost removes the directory host record for fqdn. Deleting an
	// absent record is not an error.
	DeleteHost(ctx context.Context, fqdn string) error
}

// DialFunc opens an authenticated session against a single host.
type DialFunc func(ctx context.Context, host string) (Session, error)

// Client implements Interface against a FreeIPA deployment, discovering
// candidate servers through DNS SRV records with the statically configured
// hosts as fallback.
type Client struct {
	config   pkgcfg.Config
	resolver Resolver
	dial     DialFunc
	logger   logr.Logger
}

var _ Interface = &Client{}

// Option customizes a Client; used by tests to stub out DNS and transport.
type Option func(*Client)

// WithResolver replaces the DNS resolver used for SRV discovery.
func WithResolver(r Resolver) Option {
	return func(c *Client) { c.resolver = r }
}

// WithDialer replaces the session dialer.
func WithDialer(d DialFunc) Option {
	return func(c *Client) { c.dial = d }
}

// New returns a Client for the given configuration.
func New(config pkgcfg.Config, logger logr.Logger, opts ...Option) *Client {
	c := &Client{
		config:   config,
		resolver: net.DefaultResolver,
		logger:   logger,
	}
	c.dial = func(ctx context.Context, host string) (Session, error) {
		s := newSession(host, config.IPAVerifySSL)
		if err := s.login(ctx, config.IPAUser, config.IPAPass); err != nil {
			return nil, err
		}
		return s, nil
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// candidates builds the per-call server list: discovered endpoints first,
// then the static fallbacks, deduplicated in order. The list is rebuilt on
// every connection attempt, never cached.
func (c *Client) candidates(ctx context.Context) []string {
	discovered := DiscoverServers(ctx, c.resolver, c.logger, c.config.Domain)
	if len(discovered) > 0 {
		c.logger.Info("Discovered IPA servers via DNS", "servers", discovered)
	}

	seen := make(map[string]struct{}, len(discovered))
	var hosts []string
	for _, h := range append(discovered, c.config.StaticHosts()...) {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		hosts = append(hosts, h)
	}
	return hosts
}

func (c *Client) Connect(ctx context.Context) (Session, string, error) {
	candidates := c.candidates(ctx)
	if len(candidates) == 0 {
		return nil, "", errors.New(
			"no IPA servers found: check the DNS SRV records or the IPA_HOST configuration")
	}

	var errs []error
	for _, host := range candidates {
		c.logger.V(4).Info("Attempting connection to IPA server", "host", host)

		session, err := c.dial(ctx, host)
		if err != nil {
			c.logger.Info("Failed to connect to IPA server", "host", host, "error", err.Error())
			errs = append(errs, errors.Wrap(err, host))
			continue
		}

		c.logger.Info("Authenticated to IPA server", "host", host)
		return session, host, nil
	}

	return nil, "", errors.Wrap(
		apierrorsutil.NewAggregate(errs), "all IPA connection attempts failed")
}
