// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package ipa_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	pkgcfg "github.com/virt-joiner/virt-joiner/pkg/config"
	"github.com/virt-joiner/virt-joiner/pkg/ipa"
)

var _ = Describe("FQDN", func() {
	It("joins name, namespace and domain", func() {
		Expect(ipa.FQDN("web", "prod", "example.com")).To(Equal("web.prod.example.com"))
	})
})

var _ = Describe("Host operations", func() {
	const fqdn = "web.prod.example.com"
	const uid = "b2c0e9a0-8c74-4d7e-9e3c-6a1f0d9f2b11"

	var (
		session *fakeSession
		client  *ipa.Client
	)

	BeforeEach(func() {
		session = &fakeSession{}
		resolver := &fakeResolver{err: errors.New("NXDOMAIN")}
		config := pkgcfg.Config{IPAHost: "ipa.example.com", Domain: "example.com"}
		client = newTestClient(config, resolver,
			func(context.Context, string) (ipa.Session, error) { return session, nil })
	})

	Describe("AddHost", func() {
		It("registers the host and sets its one-time password", func() {
			otp, server, err := client.AddHost(context.Background(), fqdn, uid)
			Expect(err).ToNot(HaveOccurred())
			Expect(otp).To(Equal(uid))
			Expect(server).To(Equal("ipa.example.com"))

			calls := session.recorded()
			Expect(calls).To(HaveLen(2))

			Expect(calls[0].Command).To(Equal("host_add"))
			Expect(calls[0].Args).To(Equal([]string{fqdn}))
			Expect(calls[0].Options).To(HaveKeyWithValue("force", true))
			Expect(calls[0].Options["description"]).To(ContainSubstring("K8s UID: " + uid))

			Expect(calls[1].Command).To(Equal("host_mod"))
			Expect(calls[1].Args).To(Equal([]string{fqdn}))
			Expect(calls[1].Options).To(HaveKeyWithValue("userpassword", uid))
		})

		It("propagates a host_add failure without attempting host_mod", func() {
			session.respond = func(call execCall) (*ipa.Result, error) {
				if call.Command == "host_add" {
					return nil, errors.New("duplicate entry")
				}
				return &ipa.Result{}, nil
			}

			_, _, err := client.AddHost(context.Background(), fqdn, uid)
			Expect(err).To(HaveOccurred())
			Expect(session.recorded()).To(HaveLen(1))
		})
	})

	Describe("DeleteHost", func() {
		It("issues host_del", func() {
			Expect(client.DeleteHost(context.Background(), fqdn)).To(Succeed())

			calls := session.recorded()
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].Command).To(Equal("host_del"))
			Expect(calls[0].Args).To(Equal([]string{fqdn}))
		})

		It("treats an absent host as success", func() {
			session.respond = func(execCall) (*ipa.Result, error) {
				return nil, &ipa.CommandError{Code: 4001, Message: fqdn + ": host not found"}
			}
			Expect(client.DeleteHost(context.Background(), fqdn)).To(Succeed())
		})

		It("propagates other failures", func() {
			session.respond = func(execCall) (*ipa.Result, error) {
				return nil, errors.New("internal server error")
			}
			Expect(client.DeleteHost(context.Background(), fqdn)).ToNot(Succeed())
		})
	})

	Describe("ShowHost", func() {
		It("reports the keytab once the record carries it", func() {
			session.respond = func(execCall) (*ipa.Result, error) {
				return &ipa.Result{Attrs: map[string]any{"has_keytab": true}}, nil
			}

			host, err := ipa.ShowHost(context.Background(), session, fqdn)
			Expect(err).ToNot(HaveOccurred())
			Expect(host.FQDN).To(Equal(fqdn))
			Expect(host.HasKeytab).To(BeTrue())
		})

		It("treats an empty result as a record that is not ready", func() {
			host, err := ipa.ShowHost(context.Background(), session, fqdn)
			Expect(err).ToNot(HaveOccurred())
			Expect(host.HasKeytab).To(BeFalse())
		})

		It("propagates lookup failures", func() {
			session.respond = func(execCall) (*ipa.Result, error) {
				return nil, errors.New("session expired")
			}
			_, err := ipa.ShowHost(context.Background(), session, fqdn)
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("IsNotFound", func() {
	It("matches the IPA NotFound error code", func() {
		err := &ipa.CommandError{Code: 4001, Message: "no such entry"}
		Expect(ipa.IsNotFound(err)).To(BeTrue())
	})

	It("matches a wrapped NotFound error", func() {
		err := errors.Wrap(&ipa.CommandError{Code: 4001, Message: "no such entry"}, "host_del")
		Expect(ipa.IsNotFound(err)).To(BeTrue())
	})

	It("falls back to message matching for transport-level errors", func() {
		Expect(ipa.IsNotFound(errors.New("web.prod.example.com: host not found"))).To(BeTrue())
	})

	It("rejects other command errors", func() {
		err := &ipa.CommandError{Code: 903, Message: "internal error"}
		Expect(ipa.IsNotFound(err)).To(BeFalse())
		Expect(ipa.IsNotFound(nil)).To(BeFalse())
	})
})
