package e2e_test

import (
	"encoding/json"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/wagate/citest/testutil"
	"github.com/opencode-ai/wagate/internal/registry"
	"github.com/opencode-ai/wagate/internal/whatsapp"
	"github.com/opencode-ai/wagate/pkg/types"
)

// pair creates id and waits until it is ready, returning the qr event.
func pair(ts *testutil.TestServer, client *testutil.TestClient, sse *testutil.SSEClient, id string) *testutil.QREventData {
	resp, err := client.Post(ctx, "/sessions", map[string]string{"id": id, "description": "e2e " + id})
	Expect(err).NotTo(HaveOccurred())
	Expect(resp.StatusCode).To(Equal(http.StatusCreated), resp.String())

	evt, err := sse.WaitForEvent("qr", eventTimeout)
	Expect(err).NotTo(HaveOccurred())
	qr, err := evt.ParseQREvent()
	Expect(err).NotTo(HaveOccurred())
	Expect(qr.ID).To(Equal(id))

	evt, err = sse.WaitForEvent("ready", eventTimeout)
	Expect(err).NotTo(HaveOccurred())
	ready, err := evt.ParseSessionEvent()
	Expect(err).NotTo(HaveOccurred())
	Expect(ready.ID).To(Equal(id))
	return qr
}

func statuses(client *testutil.TestClient) []types.SessionStatus {
	resp, err := client.Get(ctx, "/sessions")
	Expect(err).NotTo(HaveOccurred())
	Expect(resp.IsSuccess()).To(BeTrue(), resp.String())
	var out []types.SessionStatus
	Expect(resp.JSON(&out)).To(Succeed())
	return out
}

var _ = Describe("Gateway", func() {
	var (
		ts     *testutil.TestServer
		client *testutil.TestClient
		sse    *testutil.SSEClient
	)

	BeforeEach(func() {
		var err error
		ts, err = testutil.StartTestServer(
			testutil.WithUsers("operator"),
			testutil.WithGroups(whatsapp.Chat{ID: "120363@g.us", Name: "Family", IsGroup: true}),
		)
		Expect(err).NotTo(HaveOccurred())

		client = ts.Client()
		Expect(client.Login(ctx, "operator")).To(Succeed())

		sse = ts.SSEClient()
		sse.Token = client.Token
		Expect(sse.Connect(ctx, "/event")).To(Succeed())
		_, err = sse.WaitForEvent("init", eventTimeout)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		sse.Close()
		Expect(ts.Stop()).To(Succeed())
	})

	Describe("authentication", func() {
		It("rejects send requests without a token", func() {
			anon := ts.Client()
			resp, err := anon.Post(ctx, "/send-message", map[string]string{"sender": "x", "number": "1", "message": "hi"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.String()).To(ContainSubstring("Token not provided"))
		})

		It("accepts the token as a header or a query parameter", func() {
			anon := ts.Client()
			resp, err := anon.Get(ctx, "/sessions", testutil.WithHeader("Authorization", "Bearer "+client.Token))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK), resp.String())

			resp, err = anon.Get(ctx, "/sessions", testutil.WithQuery(map[string]string{"token": client.Token}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK), resp.String())
		})

		It("rejects unknown users", func() {
			anon := ts.Client()
			Expect(anon.Login(ctx, "intruder")).NotTo(Succeed())
		})
	})

	Describe("pairing", func() {
		It("issues a rendered pairing code and marks the session ready", func() {
			qr := pair(ts, client, sse, "sales")
			Expect(qr.Code).NotTo(BeEmpty())
			Expect(qr.Src).To(HavePrefix("data:image/png;base64,"))
			Expect(sse.CountEventType("qr")).To(Equal(1))
			Expect(sse.HasEventType("authenticated")).To(BeTrue())

			Eventually(func() []types.SessionStatus { return statuses(client) }).Should(ConsistOf(
				types.SessionStatus{
					SessionDescriptor: types.SessionDescriptor{ID: "sales", Description: "e2e sales", Ready: true},
					Live:              true,
					State:             types.StateReady,
				},
			))
		})

		It("broadcasts human readable status messages", func() {
			pair(ts, client, sse, "sales")
			Eventually(func() []string {
				var texts []string
				for _, evt := range sse.GetAllEvents() {
					if evt.Type != "message" {
						continue
					}
					if msg, err := evt.ParseStatusEvent(); err == nil {
						texts = append(texts, msg.Text)
					}
				}
				return texts
			}).Should(ContainElements("QR Code received, scan please!", "Whatsapp is authenticated!", "Whatsapp is ready!"))
		})
	})

	Describe("sending", func() {
		BeforeEach(func() {
			pair(ts, client, sse, "sales")
		})

		It("delivers a text message through the named sender", func() {
			resp, err := client.Post(ctx, "/send-message", map[string]string{
				"sender": "sales", "number": "0812345", "message": "hello",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK), resp.String())

			env, err := resp.Envelope()
			Expect(err).NotTo(HaveOccurred())
			Expect(env.Status).To(BeTrue())

			lc, ok := ts.Loopback("sales")
			Expect(ok).To(BeTrue())
			Expect(lc.Outbox()).To(HaveLen(1))
			Expect(lc.Outbox()[0].To).To(Equal("62812345@c.us"))
		})

		It("reports an unknown sender", func() {
			resp, err := client.Post(ctx, "/send-message", map[string]string{
				"sender": "nobody", "number": "1", "message": "hello",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))

			env, err := resp.Envelope()
			Expect(err).NotTo(HaveOccurred())
			var msg string
			Expect(json.Unmarshal(env.Message, &msg)).To(Succeed())
			Expect(msg).To(Equal("The sender: nobody is not found!"))
		})

		It("resolves groups by name", func() {
			resp, err := client.Post(ctx, "/send-group-message", map[string]string{
				"sender": "sales", "name": "FAMILY", "message": "dinner",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK), resp.String())

			lc, _ := ts.Loopback("sales")
			Expect(lc.Outbox()[0].To).To(Equal("120363@g.us"))
		})
	})

	Describe("removal", func() {
		It("stops the session for good", func() {
			pair(ts, client, sse, "sales")

			resp, err := client.Delete(ctx, "/sessions/sales")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			evt, err := sse.WaitForEvent("remove-session", eventTimeout)
			Expect(err).NotTo(HaveOccurred())
			var id string
			Expect(json.Unmarshal(evt.Data, &id)).To(Succeed())
			Expect(id).To(Equal("sales"))

			Expect(statuses(client)).To(BeEmpty())
			for _, evt := range sse.CollectEvents(200 * time.Millisecond) {
				Expect(evt.Type).NotTo(BeElementOf("qr", "ready"), "no restart after removal")
			}
			Consistently(func() bool {
				_, live := ts.Supervisor.Client("sales")
				return live
			}, 200*time.Millisecond).Should(BeFalse())
		})
	})
})

var _ = Describe("Restart", func() {
	It("restores paired sessions without pairing again", func() {
		dataDir := GinkgoT().TempDir()

		first, err := testutil.StartTestServer(testutil.WithDataDir(dataDir))
		Expect(err).NotTo(HaveOccurred())
		sse := first.SSEClient()
		Expect(sse.Connect(ctx, "/event")).To(Succeed())
		pair(first, first.Client(), sse, "sales")
		sse.Close()
		Expect(first.Stop()).To(Succeed())

		second, err := testutil.StartTestServer(testutil.WithDataDir(dataDir))
		Expect(err).NotTo(HaveOccurred())
		defer second.Stop()

		Eventually(func() types.SessionState {
			for _, st := range statuses(second.Client()) {
				if st.ID == "sales" {
					return st.State
				}
			}
			return ""
		}).Should(Equal(types.StateReady))

		sse = second.SSEClient()
		Expect(sse.Connect(ctx, "/event")).To(Succeed())
		defer sse.Close()
		evt, err := sse.WaitForAnyEvent(eventTimeout)
		Expect(err).NotTo(HaveOccurred())
		Expect(evt.Type).To(Equal("init"))
		var snapshot []types.SessionDescriptor
		Expect(json.Unmarshal(evt.Data, &snapshot)).To(Succeed())
		Expect(snapshot).To(Equal([]types.SessionDescriptor{{ID: "sales", Description: "e2e sales", Ready: true}}))
	})

	It("works with the sqlite registry", func() {
		dataDir := GinkgoT().TempDir()

		ts, err := testutil.StartTestServer(testutil.WithDataDir(dataDir), testutil.WithBackend(registry.BackendSQLite))
		Expect(err).NotTo(HaveOccurred())
		sse := ts.SSEClient()
		Expect(sse.Connect(ctx, "/event")).To(Succeed())
		pair(ts, ts.Client(), sse, "support")
		sse.Close()
		Expect(ts.Stop()).To(Succeed())

		ts, err = testutil.StartTestServer(testutil.WithDataDir(dataDir), testutil.WithBackend(registry.BackendSQLite))
		Expect(err).NotTo(HaveOccurred())
		defer ts.Stop()
		Eventually(func() []types.SessionStatus { return statuses(ts.Client()) }).Should(ConsistOf(
			types.SessionStatus{
				SessionDescriptor: types.SessionDescriptor{ID: "support", Description: "e2e support", Ready: true},
				Live:              true,
				State:             types.StateReady,
			},
		))
	})
})
