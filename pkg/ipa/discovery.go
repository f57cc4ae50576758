// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package ipa

import (
	"context"
	"math/rand"
	"net"
	"sort"
	"strings"

	"github.com/go-logr/logr"
)

const (
	srvService = "kerberos"
	srvProto   = "tcp"
)

// Resolver looks up DNS SRV records. *net.Resolver implements it.
type Resolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// DiscoverServers resolves the _kerberos._tcp SRV record under domain and
// returns all advertised targets, ordered by priority (lowest first) and
// shuffled within each priority tier to spread load across peers. Weights
// are deliberately ignored.
//
// Discovery is best effort: a missing record, an absent domain, or a
// transient DNS failure all degrade to an empty result.
func DiscoverServers(ctx context.Context, resolver Resolver, logger logr.Logger, domain string) []string {
	if domain == "" {
		return nil
	}

	_, records, err := resolver.LookupSRV(ctx, srvService, srvProto, domain)
	if err != nil {
		logger.V(4).Info("IPA SRV lookup failed", "domain", domain, "error", err.Error())
		return nil
	}
	if len(records) == 0 {
		logger.V(4).Info("No IPA SRV records found", "domain", domain)
		return nil
	}

	byPriority := map[uint16][]string{}
	for _, r := range records {
		target := strings.TrimSuffix(r.Target, ".")
		if target == "" {
			continue
		}
		byPriority[r.Priority] = append(byPriority[r.Priority], target)
	}

	priorities := make([]int, 0, len(byPriority))
	for p := range byPriority {
		priorities = append(priorities, int(p))
	}
	sort.Ints(priorities)

	var servers []string
	for _, p := range priorities {
		tier := byPriority[uint16(p)]
		rand.Shuffle(len(tier), func(i, j int) {
			tier[i], tier[j] = tier[j], tier[i]
		})
		servers = append(servers, tier...)
	}

	return servers
}
