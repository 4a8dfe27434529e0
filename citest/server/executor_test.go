package server_test

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/actiongate/pkg/types"
)

var _ = Describe("Executor", func() {
	var created []string

	BeforeEach(func() {
		created = nil
		_, err := client.SetTypePermission(ctx, types.ActionTypeScript, types.LevelAutoApprove)
		Expect(err).NotTo(HaveOccurred())
		_, err = client.SetTypePermission(ctx, types.ActionTypeWorkflow, types.LevelAutoApprove)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		for _, id := range created {
			client.DeleteAction(ctx, id)
		}
		resetGovernance()
	})

	It("should run a script and capture its output", func() {
		action, err := client.CreateScript(ctx, "Greet", "echo hello")
		Expect(err).NotTo(HaveOccurred())
		created = append(created, action.ID)

		exec, err := client.Invoke(ctx, action.ID, nil)
		Expect(err).NotTo(HaveOccurred())

		done, err := client.WaitForStatus(ctx, exec.ID, types.StatusCompleted, 10*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(done.Result).To(HaveKeyWithValue("stdout", ContainSubstring("hello")))
		Expect(done.Result).To(HaveKeyWithValue("exitCode", BeNumerically("==", 0)))
		Expect(done.DurationMs).NotTo(BeNil())
	})

	It("should fail a script that exits non-zero", func() {
		action, err := client.CreateScript(ctx, "Broken", "exit 3")
		Expect(err).NotTo(HaveOccurred())
		created = append(created, action.ID)

		exec, err := client.Invoke(ctx, action.ID, nil)
		Expect(err).NotTo(HaveOccurred())

		failed, err := client.WaitForStatus(ctx, exec.ID, types.StatusFailed, 10*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(failed.ErrorMessage).NotTo(BeNil())
	})

	It("should fail workflow actions that have no backend", func() {
		action, err := client.CreateAction(ctx, map[string]any{
			"actionType": "workflow",
			"name":       "Nightly",
			"config":     map[string]any{"workflowID": "wf-1"},
		})
		Expect(err).NotTo(HaveOccurred())
		created = append(created, action.ID)

		exec, err := client.Invoke(ctx, action.ID, nil)
		Expect(err).NotTo(HaveOccurred())

		failed, err := client.WaitForStatus(ctx, exec.ID, types.StatusFailed, 10*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(*failed.ErrorMessage).To(Equal("no executor registered for workflow actions"))
	})

	It("should cancel a running execution", func() {
		action, err := client.CreateScript(ctx, "Slow", "sleep 30")
		Expect(err).NotTo(HaveOccurred())
		created = append(created, action.ID)

		exec, err := client.Invoke(ctx, action.ID, nil)
		Expect(err).NotTo(HaveOccurred())
		_, err = client.WaitForStatus(ctx, exec.ID, types.StatusRunning, 10*time.Second)
		Expect(err).NotTo(HaveOccurred())

		resp, err := client.Post(ctx, "/execution/"+exec.ID+"/cancel", map[string]any{"reason": "stop"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		Consistently(func() types.ExecutionStatus {
			e, err := client.GetExecution(ctx, exec.ID)
			Expect(err).NotTo(HaveOccurred())
			return e.Status
		}, 500*time.Millisecond, 100*time.Millisecond).Should(Equal(types.StatusCancelled))
	})
})
