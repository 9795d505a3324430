package coordinator

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/riftlab/rift/internal/blob"
	"github.com/riftlab/rift/internal/config"
	"github.com/riftlab/rift/internal/model"
	"github.com/riftlab/rift/internal/store/mem"
	"github.com/riftlab/rift/internal/wireproto"
)

var _ = Describe("debounce batching", func() {
	var (
		ctx    context.Context
		st     *mem.Store
		srv    *Server
		sess   *Session
		user   model.User
		rift   model.Rift
	)

	BeforeEach(func() {
		ctx = context.Background()
		st = mem.New()
		blobs := blob.NewMemStore()
		auth := &StaticChecker{Store: st}
		cfg := &config.CoordinatorConfig{
			BroadcastQueueCapacity: 64,
			DebounceWindowMS:       20,
		}
		srv = New(cfg, st, blobs, auth, zerolog.Nop())

		var err error
		user, err = st.CreateUser(ctx, model.User{Username: "alice"})
		Expect(err).NotTo(HaveOccurred())

		var project model.Project
		project, rift, err = st.CreateProject(ctx, user.ID, "widgets", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(st.SwitchRift(ctx, user.ID, project.ID, rift.ID)).To(Succeed())

		sess = newSession("sess-1", user.ID, nil, zerolog.Nop())
	})

	It("coalesces rapid edits to the same file into one checkpoint", func() {
		srv.enqueueForBatch(ctx, sess, &wireproto.FileChanged{
			Type: wireproto.TypeFileChanged, RiftID: rift.ID, Path: "main.go", Content: []byte("v1"),
		})
		srv.enqueueForBatch(ctx, sess, &wireproto.FileChanged{
			Type: wireproto.TypeFileChanged, RiftID: rift.ID, Path: "main.go", Content: []byte("v2"),
		})

		Eventually(func() ([]model.Checkpoint, error) {
			return st.History(ctx, rift.ID, 10)
		}).Should(HaveLen(1))

		history, err := st.History(ctx, rift.ID, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(history[0].Changes).To(HaveLen(1))
		Expect(history[0].Changes[0].Path).To(Equal("main.go"))

		f, ok, err := st.GetRiftFile(ctx, rift.ID, "main.go")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(f.ContentHash).To(Equal(blob.Hash([]byte("v2"))))
	})

	It("acknowledges the committing session with CheckpointCreated", func() {
		srv.enqueueForBatch(ctx, sess, &wireproto.FileChanged{
			Type: wireproto.TypeFileChanged, RiftID: rift.ID, Path: "main.go", Content: []byte("v1"),
		})

		Eventually(sess.send).Should(Receive(WithTransform(func(data []byte) wireproto.Type {
			typ, _, err := wireproto.Parse(data)
			Expect(err).NotTo(HaveOccurred())
			return typ
		}, Equal(wireproto.TypeCheckpointCreated))))
	})

	It("skips committing a checkpoint for a no-op batch", func() {
		// Seed the file at its current hash first so the next edit is a no-op.
		Expect(srv.store.ApplyChange(ctx, rift.ID, model.FileChange{
			Path: "main.go", ChangeType: model.ChangeCreated, NewContentHash: blob.Hash([]byte("same")),
		})).To(Succeed())

		srv.enqueueForBatch(ctx, sess, &wireproto.FileChanged{
			Type: wireproto.TypeFileChanged, RiftID: rift.ID, Path: "main.go", Content: []byte("same"),
		})

		Consistently(func() ([]model.Checkpoint, error) {
			return st.History(ctx, rift.ID, 10)
		}).Should(BeEmpty())
	})
})
