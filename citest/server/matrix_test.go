package server_test

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/actiongate/pkg/types"
)

var _ = Describe("Tool Permission Matrix", func() {
	AfterEach(func() {
		resetGovernance()
	})

	Describe("GET /tool-permission", func() {
		It("should start in standard mode", func() {
			state, err := client.GetMatrix(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.QuickMode).To(Equal(types.ModeStandard))
			Expect(state.Matrix).To(HaveKey("actions"))
			Expect(state.Matrix["scripts"].Execute).To(BeFalse())
		})
	})

	Describe("PUT /tool-permission/mode", func() {
		It("should apply the read-only preset", func() {
			state, err := client.SetQuickMode(ctx, types.ModeReadOnly)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.QuickMode).To(Equal(types.ModeReadOnly))
			Expect(state.AllowList).To(Equal([]string{"actions", "executions", "permissions"}))
		})

		It("should reject custom as a preset", func() {
			resp, err := client.Put(ctx, "/tool-permission/mode", map[string]any{"mode": "custom"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(resp.ErrorCode()).To(Equal("INVALID_QUICK_MODE"))
		})
	})

	Describe("PUT /tool-permission/{tool}", func() {
		It("should switch to custom after a single change", func() {
			_, err := client.SetQuickMode(ctx, types.ModeReadOnly)
			Expect(err).NotTo(HaveOccurred())

			resp, err := client.Put(ctx, "/tool-permission/scripts", map[string]any{"permission": "execute", "value": true})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var state types.MatrixState
			Expect(resp.JSON(&state)).To(Succeed())
			Expect(state.QuickMode).To(Equal(types.ModeCustom))
			Expect(state.Matrix["scripts"].Execute).To(BeTrue())

			resp, err = client.Get(ctx, "/tool-permission/allow-list")
			Expect(err).NotTo(HaveOccurred())
			var allow []string
			Expect(resp.JSON(&allow)).To(Succeed())
			Expect(allow).To(ContainElement("scripts"))
		})

		It("should refuse cells that do not apply", func() {
			resp, err := client.Put(ctx, "/tool-permission/scripts", map[string]any{"permission": "write", "value": true})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should return 404 for unknown tools", func() {
			resp, err := client.Put(ctx, "/tool-permission/email", map[string]any{"permission": "read", "value": true})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})
})
