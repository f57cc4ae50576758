// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package ipa_test

import (
	"context"
	"net"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/virt-joiner/virt-joiner/pkg/ipa"
)

type fakeResolver struct {
	records []*net.SRV
	err     error

	lookups int
}

func (r *fakeResolver) LookupSRV(_ context.Context, service, proto, name string) (string, []*net.SRV, error) {
	r.lookups++
	if r.err != nil {
		return "", nil, r.err
	}
	return "_" + service + "._" + proto + "." + name, r.records, nil
}

var _ = Describe("DiscoverServers", func() {
	var (
		resolver *fakeResolver
		logger   = logr.Discard()
	)

	BeforeEach(func() {
		resolver = &fakeResolver{}
	})

	It("orders targets by priority, lowest first", func() {
		resolver.records = []*net.SRV{
			{Target: "backup.example.com.", Priority: 20},
			{Target: "primary.example.com.", Priority: 0},
			{Target: "secondary.example.com.", Priority: 10},
		}

		servers := ipa.DiscoverServers(context.Background(), resolver, logger, "example.com")
		Expect(servers).To(Equal([]string{
			"primary.example.com",
			"secondary.example.com",
			"backup.example.com",
		}))
	})

	It("keeps all peers of a priority tier, in some order", func() {
		resolver.records = []*net.SRV{
			{Target: "ipa1.example.com.", Priority: 0, Weight: 100},
			{Target: "ipa2.example.com.", Priority: 0, Weight: 1},
			{Target: "ipa3.example.com.", Priority: 0},
		}

		servers := ipa.DiscoverServers(context.Background(), resolver, logger, "example.com")
		Expect(servers).To(ConsistOf(
			"ipa1.example.com", "ipa2.example.com", "ipa3.example.com"))
	})

	It("degrades to empty on lookup failure", func() {
		resolver.err = errors.New("NXDOMAIN")

		servers := ipa.DiscoverServers(context.Background(), resolver, logger, "example.com")
		Expect(servers).To(BeEmpty())
	})

	It("degrades to empty when no records exist", func() {
		servers := ipa.DiscoverServers(context.Background(), resolver, logger, "example.com")
		Expect(servers).To(BeEmpty())
	})

	It("skips the lookup entirely without a domain", func() {
		servers := ipa.DiscoverServers(context.Background(), resolver, logger, "")
		Expect(servers).To(BeEmpty())
		Expect(resolver.lookups).To(BeZero())
	})

	It("drops records with empty targets", func() {
		resolver.records = []*net.SRV{
			{Target: ".", Priority: 0},
			{Target: "ipa1.example.com.", Priority: 10},
		}

		servers := ipa.DiscoverServers(context.Background(), resolver, logger, "example.com")
		Expect(servers).To(Equal([]string{"ipa1.example.com"}))
	})
})
