// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/onsi/gomega/gexec"

	"github.com/holomush/wand/internal/plugin"
)

// repoPlugin reads a file from the sample plugins shipped in the repository.
func repoPlugin(name, file string) string {
	GinkgoHelper()
	data, err := os.ReadFile(filepath.Join("..", "..", "plugins", name, file))
	Expect(err).NotTo(HaveOccurred())
	return string(data)
}

var _ = Describe("Binary plugins", Ordered, func() {
	var greeterBin string

	BeforeAll(func() {
		var err error
		greeterBin, err = gexec.Build("github.com/holomush/wand/plugins/greeter")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(gexec.CleanupBuildArtifacts)
	})

	var (
		h   *testHost
		ctx context.Context
	)

	BeforeEach(func() {
		h = newTestHost()
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), time.Minute)
		DeferCleanup(cancel)

		bin, err := os.ReadFile(greeterBin)
		Expect(err).NotTo(HaveOccurred())
		dir := filepath.Join(h.root, "greeter")
		h.write("greeter", map[string]string{"plugin.yaml": repoPlugin("greeter", "plugin.yaml")})
		Expect(os.WriteFile(filepath.Join(dir, "greeter"), bin, 0o700)).To(Succeed()) //nolint:gosec // test plugin executable
	})

	It("serves exported methods over the plugin protocol", func() {
		Expect(h.boot(ctx)).To(Succeed())
		Expect(h.instance("greeter").State()).To(Equal(plugin.StateStarted))

		res, err := h.bridge.Invoke(ctx, "greeter.greet", "ada")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Value).To(Equal("hello, ada"))

		res, err = h.bridge.Invoke(ctx, "greeter.tally", 0.0)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Refs).To(HaveLen(1))
		Expect(res.Refs[0]).To(BeNumerically("==", 1))
	})

	It("surfaces plugin errors as call failures", func() {
		Expect(h.boot(ctx)).To(Succeed())

		_, err := h.bridge.Invoke(ctx, "greeter.greet", "   ")
		Expect(err).To(MatchError(ContainSubstring("name is empty")))
	})

	It("calls back into the host and other plugins", func() {
		h.write("counter", map[string]string{
			"plugin.yaml": repoPlugin("counter", "plugin.yaml"),
			"main.lua":    repoPlugin("counter", "main.lua"),
		})
		Expect(h.boot(ctx)).To(Succeed())

		res, err := h.bridge.Invoke(ctx, "greeter.shout", "ada")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Value).To(Equal("HELLO, ADA (#1)"))

		res, err = h.bridge.Invoke(ctx, "greeter.shout", "bob")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Value).To(Equal("HELLO, BOB (#2)"))
	})

	It("stops the plugin process on unload", func() {
		Expect(h.boot(ctx)).To(Succeed())
		Expect(h.manager.Shutdown(ctx)).To(Succeed())

		_, err := h.bridge.Invoke(ctx, "greeter.greet", "ada")
		Expect(err).To(HaveOccurred())
		Expect(h.manager.Registry().Len()).To(BeZero())
	})
})
