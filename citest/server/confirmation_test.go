package server_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/actiongate/citest/testutil"
	"github.com/opencode-ai/actiongate/pkg/types"
)

var _ = Describe("Confirmation Flow", func() {
	var hook *httptest.Server
	var hits atomic.Int32
	var action *types.Action

	BeforeEach(func() {
		hits.Store(0)
		hook = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"ok":true}`))
		}))

		var err error
		action, err = client.CreateWebhook(ctx, "Notify", hook.URL)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		client.DeleteAction(ctx, action.ID)
		hook.Close()
		resetGovernance()
	})

	Describe("POST /action/{actionID}/invoke", func() {
		It("should hold the execution for confirmation by default", func() {
			exec, err := client.Invoke(ctx, action.ID, map[string]any{"text": "hi"},
				testutil.WithHeader("X-Source-Client", "claude-desktop"))
			Expect(err).NotTo(HaveOccurred())
			Expect(exec.Status).To(Equal(types.StatusPendingConfirm))
			Expect(exec.SourceClient).To(Equal("claude-desktop"))
			Expect(exec.ConfirmDeadline).NotTo(BeNil())

			pending, err := client.ListPending(ctx)
			Expect(err).NotTo(HaveOccurred())
			ids := make([]string, 0, len(pending))
			for _, p := range pending {
				ids = append(ids, p.ExecutionID)
			}
			Expect(ids).To(ContainElement(exec.ID))
		})

		It("should run immediately when the type is auto-approved", func() {
			_, err := client.SetTypePermission(ctx, types.ActionTypeWebhook, types.LevelAutoApprove)
			Expect(err).NotTo(HaveOccurred())

			exec, err := client.Invoke(ctx, action.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(exec.Status).NotTo(Equal(types.StatusPendingConfirm))

			done, err := client.WaitForStatus(ctx, exec.ID, types.StatusCompleted, 10*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(done.Result).To(HaveKeyWithValue("statusCode", BeNumerically("==", 200)))
			Expect(hits.Load()).To(BeNumerically("==", 1))
		})

		It("should record a denied execution when policy denies", func() {
			_, err := client.SetActionPermission(ctx, action.ID, types.LevelDeny)
			Expect(err).NotTo(HaveOccurred())

			exec, err := client.Invoke(ctx, action.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(exec.Status).To(Equal(types.StatusDenied))
			Expect(exec.ErrorMessage).NotTo(BeNil())
			Expect(*exec.ErrorMessage).To(Equal("denied by policy"))
			Expect(exec.CompletedAt).NotTo(BeNil())
			Expect(hits.Load()).To(BeNumerically("==", 0))
		})

		It("should refuse a disabled action without recording it", func() {
			resp, err := client.Patch(ctx, "/action/"+action.ID, map[string]any{"isEnabled": false})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.IsSuccess()).To(BeTrue())

			resp, err = client.Post(ctx, "/action/"+action.ID+"/invoke", map[string]any{})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
			Expect(resp.ErrorCode()).To(Equal("ACTION_DISABLED"))

			execs, err := client.ListExecutions(ctx, map[string]string{"actionId": action.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(execs).To(BeEmpty())
		})

		It("should return 404 for a missing action", func() {
			resp, err := client.Post(ctx, "/action/missing/invoke", map[string]any{})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("POST /pending/{executionID}", func() {
		var exec *types.Execution

		BeforeEach(func() {
			var err error
			exec, err = client.Invoke(ctx, action.ID, map[string]any{"text": "hi"})
			Expect(err).NotTo(HaveOccurred())
			Expect(exec.Status).To(Equal(types.StatusPendingConfirm))
		})

		It("should queue and run the execution on approval", func() {
			resp, err := client.Respond(ctx, exec.ID, testutil.RespondRequest{Approved: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var answer types.RequestResponse
			Expect(resp.JSON(&answer)).To(Succeed())
			Expect(answer.Approved).To(BeTrue())
			Expect(answer.Status).To(Equal(types.StatusQueued))

			_, err = client.WaitForStatus(ctx, exec.ID, types.StatusCompleted, 10*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits.Load()).To(BeNumerically("==", 1))

			pending, err := client.ListPending(ctx)
			Expect(err).NotTo(HaveOccurred())
			for _, p := range pending {
				Expect(p.ExecutionID).NotTo(Equal(exec.ID))
			}
		})

		It("should deny with the given reason", func() {
			resp, err := client.Respond(ctx, exec.ID, testutil.RespondRequest{Approved: false, Reason: "not now"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			denied, err := client.GetExecution(ctx, exec.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(denied.Status).To(Equal(types.StatusDenied))
			Expect(*denied.ErrorMessage).To(Equal("not now"))

			resp, err = client.Respond(ctx, exec.ID, testutil.RespondRequest{Approved: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			Expect(resp.ErrorCode()).To(Equal("NO_LONGER_PENDING"))
		})

		It("should remember an approval for the action", func() {
			resp, err := client.Respond(ctx, exec.ID, testutil.RespondRequest{Approved: true, Remember: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			decision, err := client.Decision(ctx, action.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Level).To(Equal(types.LevelAutoApprove))

			next, err := client.Invoke(ctx, action.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(next.Status).NotTo(Equal(types.StatusPendingConfirm))
		})

		It("should return 404 for an unknown execution", func() {
			resp, err := client.Respond(ctx, "missing", testutil.RespondRequest{Approved: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Confirmation timeout", func() {
		BeforeEach(func() {
			previous := testServer.Executions.ConfirmTimeout()
			testServer.Executions.SetConfirmTimeout(200 * time.Millisecond)
			DeferCleanup(func() {
				testServer.Executions.SetConfirmTimeout(previous)
			})
		})

		It("should time out an unanswered request", func() {
			exec, err := client.Invoke(ctx, action.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(exec.Status).To(Equal(types.StatusPendingConfirm))

			expired, err := client.WaitForStatus(ctx, exec.ID, types.StatusTimedOut, 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(expired.CompletedAt).NotTo(BeNil())

			resp, err := client.Respond(ctx, exec.ID, testutil.RespondRequest{Approved: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			Expect(hits.Load()).To(BeNumerically("==", 0))
		})
	})
})
