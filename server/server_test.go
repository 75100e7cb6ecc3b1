package server

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/appdex/appdexd/internal/launcher"
	"github.com/appdex/appdexd/parser"
)

var _ = Describe("executeCommand", func() {
	var (
		tmpDir   string
		l        *launcher.Launcher
		srv      *Server
		sess     *session
		buf      bytes.Buffer
		conn     *mockConn
		response string
	)

	writeDesktop := func(appsDir, name, display string) {
		content := "[Desktop Entry]\nName=" + display + "\nExec=/bin/true\n"
		path := filepath.Join(appsDir, name+".desktop")
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "appdex-server-test-*")
		Expect(err).NotTo(HaveOccurred())

		appsDir := filepath.Join(tmpDir, "applications")
		Expect(os.MkdirAll(appsDir, 0755)).To(Succeed())
		writeDesktop(appsDir, "firefox", "Firefox")
		writeDesktop(appsDir, "files", "Files")

		l, err = launcher.New(launcher.Options{
			AppPaths:     func() []string { return []string{appsDir} },
			SnapshotPath: filepath.Join(tmpDir, "apps.db"),
			ListLimit:    9,
		})
		Expect(err).NotTo(HaveOccurred())

		srv = &Server{launcher: l, limit: 9}
		sess = &session{limit: 9}
		buf.Reset()
		conn = &mockConn{writeBuf: &buf}
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	runCommand := func(cmd *parser.Command) {
		srv.executeCommand(conn, cmd, sess)
		response = buf.String()
	}

	Context("when handling search", func() {
		BeforeEach(func() {
			runCommand(&parser.Command{
				Name: "search",
				Args: []parser.Value{{Type: parser.TypeString, Str: "fir"}},
			})
		})

		It("should report success", func() {
			Expect(response).To(ContainSubstring("cmd: search"))
			Expect(response).To(ContainSubstring("status: 0"))
		})

		It("should return only the matching record", func() {
			Expect(response).To(ContainSubstring("list-len: 1"))
			Expect(response).To(ContainSubstring("Firefox"))
			Expect(response).NotTo(ContainSubstring("Files"))
		})
	})

	Context("when handling search without a query", func() {
		BeforeEach(func() {
			runCommand(&parser.Command{Name: "search"})
		})

		It("should return an error response", func() {
			Expect(response).To(ContainSubstring("error-cmd: search"))
			Expect(response).To(ContainSubstring("missing query"))
		})
	})

	Context("when handling list", func() {
		BeforeEach(func() {
			runCommand(&parser.Command{Name: "list"})
		})

		It("should return both records", func() {
			Expect(response).To(ContainSubstring("cmd: list"))
			Expect(response).To(ContainSubstring("list-len: 2"))
		})
	})

	Context("when handling list with a session limit", func() {
		BeforeEach(func() {
			sess.limit = 1
			runCommand(&parser.Command{Name: "list"})
		})

		It("should truncate to the limit", func() {
			Expect(response).To(ContainSubstring("list-len: 1"))
		})
	})

	Context("when handling run with an unknown id", func() {
		BeforeEach(func() {
			runCommand(&parser.Command{
				Name: "run",
				Args: []parser.Value{{Type: parser.TypeString, Str: "no-such-id"}},
			})
		})

		It("should return an unknown id error", func() {
			Expect(response).To(ContainSubstring("error-cmd: run"))
			Expect(response).To(ContainSubstring("unknown id"))
		})
	})

	Context("when handling rescan", func() {
		BeforeEach(func() {
			runCommand(&parser.Command{Name: "rescan"})
		})

		It("should report the merge counts", func() {
			Expect(response).To(ContainSubstring("cmd: rescan"))
			Expect(response).To(ContainSubstring("added: 0"))
			Expect(response).To(ContainSubstring("removed: 0"))
		})
	})

	Context("when handling stats", func() {
		BeforeEach(func() {
			runCommand(&parser.Command{Name: "stats"})
		})

		It("should report the record count", func() {
			Expect(response).To(ContainSubstring("cmd: stats"))
			Expect(response).To(ContainSubstring("records: 2"))
		})
	})

	Context("when handling limit", func() {
		BeforeEach(func() {
			runCommand(&parser.Command{
				Name: "limit",
				Args: []parser.Value{{Type: parser.TypeInt, Int: 3}},
			})
		})

		It("should update the session", func() {
			Expect(response).To(ContainSubstring("limit: 3"))
			Expect(sess.limit).To(Equal(3))
		})
	})

	Context("when handling limit with a bad argument", func() {
		BeforeEach(func() {
			runCommand(&parser.Command{
				Name: "limit",
				Args: []parser.Value{{Type: parser.TypeInt, Int: -1}},
			})
		})

		It("should reject it and keep the session limit", func() {
			Expect(response).To(ContainSubstring("error-cmd: limit"))
			Expect(sess.limit).To(Equal(9))
		})
	})

	Context("when handling an unknown command", func() {
		BeforeEach(func() {
			runCommand(&parser.Command{Name: "frobnicate"})
		})

		It("should return an unknown command error", func() {
			Expect(response).To(ContainSubstring("unknown command"))
		})
	})

	Context("when a full request arrives over a pipe", func() {
		var (
			clientConn net.Conn
			serverConn net.Conn
		)

		BeforeEach(func() {
			clientConn, serverConn = net.Pipe()

			go func() {
				defer serverConn.Close()
				p, err := parser.NewParser(serverConn)
				if err != nil {
					return
				}
				cmd, err := p.ParseCommand()
				if err != nil {
					return
				}
				srv.executeCommand(serverConn, cmd, &session{limit: 9})
			}()

			_, err := clientConn.Write([]byte("TXT01\"fire\nsearch\n"))
			Expect(err).NotTo(HaveOccurred())

			response, err = readFullResponse(clientConn)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			clientConn.Close()
		})

		It("should answer with a ranked list", func() {
			Expect(response).To(ContainSubstring("cmd: search"))
			Expect(response).To(ContainSubstring("Firefox"))
		})
	})
})

// readFullResponse reads one response from a connection, header included.
func readFullResponse(conn net.Conn) (string, error) {
	header := make([]byte, 5)
	if _, err := conn.Read(header); err != nil {
		return "", err
	}

	var b strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			b.Write(buf[:n])
		}
		if err != nil || strings.HasSuffix(b.String(), "\n\n") {
			break
		}
	}
	return b.String(), nil
}

// mockConn implements net.Conn over in-memory buffers.
type mockConn struct {
	readBuf  *bytes.Buffer
	writeBuf *bytes.Buffer
}

func (m *mockConn) Read(b []byte) (n int, err error) {
	if m.readBuf == nil {
		return 0, nil
	}
	return m.readBuf.Read(b)
}

func (m *mockConn) Write(b []byte) (n int, err error) {
	if m.writeBuf == nil {
		return len(b), nil
	}
	return m.writeBuf.Write(b)
}

func (m *mockConn) Close() error { return nil }

func (m *mockConn) LocalAddr() net.Addr {
	return &net.UnixAddr{Name: "test", Net: "unix"}
}

func (m *mockConn) RemoteAddr() net.Addr {
	return &net.UnixAddr{Name: "test", Net: "unix"}
}

func (m *mockConn) SetDeadline(t time.Time) error      { return nil }
func (m *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *mockConn) SetWriteDeadline(t time.Time) error { return nil }
