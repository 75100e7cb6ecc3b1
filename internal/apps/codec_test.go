package apps

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/appdex/appdexd/internal/desktop"
)

var _ = Describe("Snapshot codec", func() {
	var (
		tmpDir string
		dbPath string
		db     *DB
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "appdex-codec-test-*")
		Expect(err).NotTo(HaveOccurred())
		dbPath = filepath.Join(tmpDir, "apps.db")

		db = NewDB()
		db.Seed([]desktop.Entry{
			entry("firefox", "/apps/firefox.desktop"),
			entry("files", "/apps/files.desktop"),
		}, map[string]uint64{"/apps/firefox.desktop": 7})
		Expect(db.RecordUsage(appsBySource(db)["/apps/files.desktop"].ID)).To(Succeed())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("Save and Load", func() {
		It("should round-trip every identity and ranking field", func() {
			Expect(db.Save(dbPath)).To(Succeed())

			loaded, err := Load(dbPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Len()).To(Equal(db.Len()))

			want := appsBySource(db)
			for path, got := range appsBySource(loaded) {
				Expect(got.ID).To(Equal(want[path].ID))
				Expect(got.Name).To(Equal(want[path].Name))
				Expect(got.Exec).To(Equal(want[path].Exec))
				Expect(got.UsageCount).To(Equal(want[path].UsageCount))
				Expect(got.LastUsed.Equal(want[path].LastUsed)).To(BeTrue())
			}
		})

		It("should create the target directory if needed", func() {
			nested := filepath.Join(tmpDir, "deep", "apps.db")
			Expect(db.Save(nested)).To(Succeed())
			Expect(nested).To(BeAnExistingFile())
		})

		It("should leave no temp files behind", func() {
			Expect(db.Save(dbPath)).To(Succeed())

			names, err := filepath.Glob(filepath.Join(tmpDir, "*.tmp"))
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(BeEmpty())
		})
	})

	Describe("Load failures", func() {
		It("should report a missing file as ErrNotFound", func() {
			_, err := Load(filepath.Join(tmpDir, "nope.db"))
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("should fail on garbage content", func() {
			Expect(os.WriteFile(dbPath, []byte("not msgpack at all"), 0600)).To(Succeed())

			_, err := Load(dbPath)
			Expect(err).To(HaveOccurred())
			Expect(err).NotTo(MatchError(ErrNotFound))
		})

		It("should reject an unsupported snapshot version", func() {
			raw, err := msgpack.Marshal(snapshot{Version: 99, SavedAt: time.Now()})
			Expect(err).NotTo(HaveOccurred())
			Expect(os.WriteFile(dbPath, raw, 0600)).To(Succeed())

			_, err = Load(dbPath)
			Expect(err).To(MatchError(ContainSubstring("unsupported version")))
		})
	})

	Describe("MergeAndSave", func() {
		It("should persist the merged store", func() {
			_, _, err := db.MergeAndSave([]desktop.Entry{
				entry("firefox", "/apps/firefox.desktop"),
			}, dbPath)
			Expect(err).NotTo(HaveOccurred())

			loaded, err := Load(dbPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Len()).To(Equal(1))
			Expect(appsBySource(loaded)["/apps/firefox.desktop"].UsageCount).To(Equal(uint64(7)))
		})

		It("should keep the previous file intact when the save fails", func() {
			Expect(db.Save(dbPath)).To(Succeed())

			// Saving into a path whose parent is a regular file cannot
			// succeed; the original snapshot must stay loadable.
			blocked := filepath.Join(dbPath, "apps.db")
			_, _, err := db.MergeAndSave([]desktop.Entry{
				entry("firefox", "/apps/firefox.desktop"),
			}, blocked)
			Expect(err).To(HaveOccurred())

			loaded, err := Load(dbPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Len()).To(Equal(2))
		})
	})
})
