package server_test

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/actiongate/citest/testutil"
	"github.com/opencode-ai/actiongate/pkg/types"
)

var _ = Describe("SSE Event Streaming", func() {
	var action *types.Action

	BeforeEach(func() {
		var err error
		action, err = client.CreateWebhook(ctx, "Ping", "http://127.0.0.1:1/hook")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		client.DeleteAction(ctx, action.ID)
		resetGovernance()
	})

	Describe("GET /event", func() {
		It("should return SSE headers", func() {
			req, err := http.NewRequest("GET", testServer.BaseURL+"/event", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Accept", "text/event-stream")

			httpClient := &http.Client{Timeout: 5 * time.Second}
			resp, err := httpClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))
			Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
		})

		It("should announce the connection", func() {
			sseClient := testServer.SSEClient()
			Expect(sseClient.Connect(ctx, "/event")).To(Succeed())
			defer sseClient.Close()

			_, err := sseClient.WaitForEvent("server.connected", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should deliver execution status changes", func() {
			sseClient := testServer.SSEClient()
			Expect(sseClient.Connect(ctx, "/event?type=execution.")).To(Succeed())
			defer sseClient.Close()

			_, err := sseClient.WaitForEvent("server.connected", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			exec, err := client.Invoke(ctx, action.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			data, err := sseClient.WaitForExecutionStatus(exec.ID, types.StatusPendingConfirm, 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(data.ExecutionID).To(Equal(exec.ID))

			resp, err := client.Respond(ctx, exec.ID, testutil.RespondRequest{Approved: false})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.IsSuccess()).To(BeTrue())

			_, err = sseClient.WaitForExecutionStatus(exec.ID, types.StatusDenied, 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should filter events by type prefix", func() {
			sseClient := testServer.SSEClient()
			Expect(sseClient.Connect(ctx, "/event?type=action.")).To(Succeed())
			defer sseClient.Close()

			_, err := sseClient.WaitForEvent("server.connected", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			_, err = client.Invoke(ctx, action.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = client.Patch(ctx, "/action/"+action.ID, map[string]any{"name": "Ping 2"})
			Expect(err).NotTo(HaveOccurred())

			_, err = sseClient.WaitForEvent("action.updated", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(sseClient.HasEventType("execution.updated")).To(BeFalse())
		})
	})
})
