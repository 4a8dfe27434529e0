package server_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/actiongate/pkg/types"
)

var _ = Describe("Metrics", func() {
	var action *types.Action

	BeforeEach(func() {
		var err error
		action, err = client.CreateScript(ctx, "Count", "true")
		Expect(err).NotTo(HaveOccurred())
		_, err = client.SetActionPermission(ctx, action.ID, types.LevelDeny)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		client.DeleteAction(ctx, action.ID)
		resetGovernance()
	})

	Describe("GET /metrics", func() {
		It("should count denied executions", func() {
			_, err := client.Invoke(ctx, action.ID, nil)
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() string {
				resp, err := client.Get(ctx, "/metrics")
				Expect(err).NotTo(HaveOccurred())
				return resp.String()
			}, 5*time.Second, 100*time.Millisecond).Should(
				ContainSubstring(`actiongate_execution_transitions_total{action_type="script",status="denied"}`))
		})

		It("should expose the pending gauge and request counters", func() {
			_, err := client.Invoke(ctx, action.ID, nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := client.Get(ctx, "/metrics")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(200))
			Expect(resp.String()).To(ContainSubstring("actiongate_pending_confirmations"))
			Expect(resp.String()).To(ContainSubstring(`route="/action/{actionID}/invoke"`))
		})
	})
})
