package server_test

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/actiongate/pkg/types"
)

var _ = Describe("Execution Retention", func() {
	var action *types.Action

	BeforeEach(func() {
		var err error
		action, err = client.CreateScript(ctx, "Noop", "true")
		Expect(err).NotTo(HaveOccurred())
		_, err = client.SetActionPermission(ctx, action.ID, types.LevelDeny)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		client.DeleteAction(ctx, action.ID)
		resetGovernance()
	})

	Describe("POST /execution/cleanup", func() {
		It("should keep recent executions under the defaults", func() {
			for i := 0; i < 3; i++ {
				_, err := client.Invoke(ctx, action.ID, nil)
				Expect(err).NotTo(HaveOccurred())
			}

			deleted, err := client.Cleanup(ctx, map[string]int{})
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(Equal(0))
		})

		It("should delete terminal executions beyond the keep count", func() {
			var ids []string
			for i := 0; i < 3; i++ {
				exec, err := client.Invoke(ctx, action.ID, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(exec.Status).To(Equal(types.StatusDenied))
				ids = append(ids, exec.ID)
				time.Sleep(5 * time.Millisecond)
			}

			deleted, err := client.Cleanup(ctx, map[string]int{"keepCount": 0, "maxAgeDays": 0})
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(BeNumerically(">=", 3))

			for _, id := range ids {
				resp, err := client.Get(ctx, "/execution/"+id)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			}
		})

		It("should reject negative options", func() {
			resp, err := client.Post(ctx, "/execution/cleanup", map[string]int{"keepCount": -1})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(resp.ErrorCode()).To(Equal("INVALID_REQUEST"))
		})
	})
})
