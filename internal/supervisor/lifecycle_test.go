package supervisor_test

import (
	"context"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/wagate/internal/event"
	"github.com/opencode-ai/wagate/internal/registry"
	"github.com/opencode-ai/wagate/internal/storage"
	"github.com/opencode-ai/wagate/internal/supervisor"
	"github.com/opencode-ai/wagate/internal/whatsapp/fake"
	"github.com/opencode-ai/wagate/pkg/types"
)

var _ = Describe("Session lifecycle", func() {
	var (
		ctx    context.Context
		store  registry.Store
		bus    *event.Bus
		driver *fake.Driver
		sup    *supervisor.Supervisor
	)

	start := func(restart supervisor.RestartConfig) {
		var err error
		sup, err = supervisor.New(supervisor.Config{
			Store:       store,
			Bus:         bus,
			Factory:     driver.Factory,
			Credentials: storage.New(filepath.Join(GinkgoT().TempDir(), "auth")),
			Restart:     restart,
		})
		Expect(err).NotTo(HaveOccurred())
	}

	load := func() []types.SessionDescriptor {
		ds, err := store.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		return ds
	}

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		store, err = registry.Open(ctx, registry.BackendFile, filepath.Join(GinkgoT().TempDir(), "whatsapp-sessions.json"))
		Expect(err).NotTo(HaveOccurred())
		bus = event.NewBus(store.Load, 128)
		driver = fake.NewDriver()
	})

	AfterEach(func() {
		if sup != nil {
			Expect(sup.Close(ctx)).To(Succeed())
			sup = nil
		}
		Expect(bus.Close()).To(Succeed())
		Expect(store.Close()).To(Succeed())
	})

	Describe("bootstrap", func() {
		It("starts an empty gateway from an absent registry", func() {
			start(supervisor.RestartConfig{})

			n, err := supervisor.Bootstrap(ctx, store, sup)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
			Expect(load()).To(BeEmpty())
		})

		It("recreates persisted sessions in order", func() {
			Expect(store.Save(ctx, []types.SessionDescriptor{
				{ID: "s1", Description: "first", Ready: true},
				{ID: "s2", Description: "second", Ready: false},
			})).To(Succeed())
			start(supervisor.RestartConfig{})

			n, err := supervisor.Bootstrap(ctx, store, sup)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))

			Expect(driver.Clients("s1")).To(HaveLen(1))
			Expect(driver.Clients("s2")).To(HaveLen(1))
			Expect(load()).To(Equal([]types.SessionDescriptor{
				{ID: "s1", Description: "first", Ready: true},
				{ID: "s2", Description: "second", Ready: false},
			}))
		})
	})

	Describe("observers", func() {
		It("receive the current registry before later events", func() {
			start(supervisor.RestartConfig{})
			Expect(sup.CreateSession(ctx, "s1", "first")).To(Succeed())

			o, err := bus.Subscribe(ctx)
			Expect(err).NotTo(HaveOccurred())
			defer o.Close()

			var first event.Event
			Eventually(o.C()).Should(Receive(&first))
			Expect(first.Type).To(Equal(event.Init))
			Expect(first.Data.(event.SnapshotData).Sessions).To(Equal(load()))

			driver.Latest("s1").EmitReady()
			var next event.Event
			Eventually(o.C()).Should(Receive(&next))
			Expect(next.Type).To(Equal(event.Ready))
		})
	})

	Describe("disconnect", func() {
		It("removes the session and descriptor, then restarts", func() {
			start(supervisor.RestartConfig{InitialInterval: 300 * time.Millisecond, MaxInterval: time.Second})
			Expect(sup.CreateSession(ctx, "s1", "first")).To(Succeed())
			client := driver.Latest("s1")
			client.EmitReady()
			Eventually(load).Should(ContainElement(types.SessionDescriptor{ID: "s1", Description: "first", Ready: true}))

			client.EmitDisconnected("NAVIGATION")

			Eventually(func() error {
				_, err := sup.GetSession("s1")
				return err
			}).Should(MatchError(supervisor.ErrNotFound))
			Expect(load()).To(BeEmpty())
			Expect(client.Destroyed()).To(BeTrue())

			Eventually(func() int { return len(driver.Clients("s1")) }, 2*time.Second).Should(Equal(2))
			Eventually(func() types.SessionState {
				sess, err := sup.GetSession("s1")
				if err != nil {
					return types.StateDisconnected
				}
				return sess.State()
			}).Should(Equal(types.StateInitializing))
			Eventually(load).Should(Equal([]types.SessionDescriptor{{ID: "s1", Description: "first"}}))
		})
	})

	Describe("sqlite registry", func() {
		It("behaves like the file registry", func() {
			sqlStore, err := registry.Open(ctx, registry.BackendSQLite, filepath.Join(GinkgoT().TempDir(), "sessions.db"))
			Expect(err).NotTo(HaveOccurred())
			defer sqlStore.Close()

			sqlBus := event.NewBus(sqlStore.Load, 16)
			defer sqlBus.Close()

			s, err := supervisor.New(supervisor.Config{Store: sqlStore, Bus: sqlBus, Factory: driver.Factory})
			Expect(err).NotTo(HaveOccurred())
			defer s.Close(ctx)

			Expect(s.CreateSession(ctx, "s1", "first")).To(Succeed())
			driver.Latest("s1").EmitReady()

			Eventually(func() []types.SessionDescriptor {
				ds, _ := sqlStore.Load(ctx)
				return ds
			}).Should(Equal([]types.SessionDescriptor{{ID: "s1", Description: "first", Ready: true}}))
		})
	})
})
