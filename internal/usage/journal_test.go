package usage

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Journal", func() {
	var (
		journal *Journal
		tmpDir  string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "appdex-usage-test-*")
		Expect(err).NotTo(HaveOccurred())

		journal, err = Open(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(journal).NotTo(BeNil())
	})

	AfterEach(func() {
		if journal != nil {
			Expect(journal.Close()).To(Succeed())
		}
		os.RemoveAll(tmpDir)
	})

	Describe("Open", func() {
		It("should create the journal file", func() {
			Expect(filepath.Join(tmpDir, "usage.journal")).To(BeAnExistingFile())
		})

		It("should create a missing directory", func() {
			nested := filepath.Join(tmpDir, "data", "appdex")
			j, err := Open(nested)
			Expect(err).NotTo(HaveOccurred())
			defer j.Close()
			Expect(nested).To(BeADirectory())
		})
	})

	Describe("Increment", func() {
		It("should count launches per source path", func() {
			path := "/apps/firefox.desktop"

			counts := journal.Counts([]string{path})
			Expect(counts[path]).To(Equal(uint64(0)))

			Expect(journal.Increment(path)).To(Succeed())
			Expect(journal.Increment(path)).To(Succeed())

			counts = journal.Counts([]string{path})
			Expect(counts[path]).To(Equal(uint64(2)))
		})

		It("should keep paths independent", func() {
			Expect(journal.Increment("/apps/a.desktop")).To(Succeed())
			Expect(journal.Increment("/apps/a.desktop")).To(Succeed())
			Expect(journal.Increment("/apps/b.desktop")).To(Succeed())

			counts := journal.Counts([]string{"/apps/a.desktop", "/apps/b.desktop"})
			Expect(counts["/apps/a.desktop"]).To(Equal(uint64(2)))
			Expect(counts["/apps/b.desktop"]).To(Equal(uint64(1)))
		})
	})

	Describe("Counts", func() {
		It("should report zero for unknown paths", func() {
			counts := journal.Counts([]string{"/apps/never.desktop"})
			Expect(counts["/apps/never.desktop"]).To(Equal(uint64(0)))
		})

		It("should handle an empty path list", func() {
			Expect(journal.Counts(nil)).To(BeEmpty())
		})
	})

	Describe("persistence", func() {
		It("should survive a close and reopen", func() {
			Expect(journal.Increment("/apps/firefox.desktop")).To(Succeed())
			Expect(journal.Close()).To(Succeed())

			var err error
			journal, err = Open(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			counts := journal.Counts([]string{"/apps/firefox.desktop"})
			Expect(counts["/apps/firefox.desktop"]).To(Equal(uint64(1)))
		})
	})

	Describe("Close", func() {
		It("should tolerate a nil database", func() {
			empty := &Journal{}
			Expect(empty.Close()).To(Succeed())
		})
	})
})
