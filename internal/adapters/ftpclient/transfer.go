// Package ftpclient downloads package directories from an FTP server.
package ftpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"

	"github.com/mikey-austin/screener/internal/modules/content"
	"github.com/mikey-austin/screener/pkg/screener"
)

// ErrUnsupportedMode reports a transfer mode the client cannot use.
var ErrUnsupportedMode = errors.New("unsupported ftp mode")

// DefaultPort is used when the connection details carry none.
const DefaultPort = 21

// Conn is the part of the server connection the transfer uses.
type Conn interface {
	Login(user, password string) error
	List(path string) ([]*ftp.Entry, error)
	Retr(path string) (io.ReadCloser, error)
	Quit() error
}

// Dialer opens a control connection.
type Dialer func(ctx context.Context, addr string, disableEPSV bool, timeout time.Duration) (Conn, error)

type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	return c.ServerConn.Retr(path)
}

func dial(ctx context.Context, addr string, disableEPSV bool, timeout time.Duration) (Conn, error) {
	opts := []ftp.DialOption{ftp.DialWithContext(ctx), ftp.DialWithDisabledEPSV(disableEPSV)}
	if timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(timeout))
	}
	c, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, err
	}
	return serverConn{c}, nil
}

// Options configures the transfer.
type Options struct {
	// Timeout bounds dialing and each control exchange.
	Timeout time.Duration
	Logger  *zap.Logger
	Dial    Dialer
}

// Transfer fetches a remote directory tree in passive mode.
type Transfer struct {
	log     *zap.Logger
	timeout time.Duration
	dial    Dialer
}

var _ content.Transfer = (*Transfer)(nil)

// New builds a transfer.
func New(opts Options) *Transfer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Dial == nil {
		opts.Dial = dial
	}
	return &Transfer{log: opts.Logger, timeout: opts.Timeout, dial: opts.Dial}
}

type remoteFile struct {
	path string
	rel  string
	size int64
}

// Download copies remotePath and everything below it into a directory under
// dest named after the remote path. The directory is returned even on error
// so the caller can remove it.
func (t *Transfer) Download(ctx context.Context, details screener.ConnectionDetails, remotePath, dest string, progress content.ProgressFunc) (string, error) {
	root := path.Clean("/" + strings.Trim(remotePath, "/"))
	dir := filepath.Join(dest, filepath.FromSlash(root))
	if root == "/" {
		return dir, errors.New("remote path required")
	}

	disableEPSV, err := passiveMode(details.Mode)
	if err != nil {
		return dir, err
	}
	port := details.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := net.JoinHostPort(details.Host, strconv.Itoa(port))

	log := t.log.With(zap.String("host", addr), zap.String("path", root))
	log.Info("connecting")
	c, err := t.dial(ctx, addr, disableEPSV, t.timeout)
	if err != nil {
		return dir, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer func() {
		if err := c.Quit(); err != nil {
			log.Debug("quit", zap.Error(err))
		}
	}()

	user, pass := details.User, details.Passwd
	if user == "" {
		user, pass = "anonymous", "anonymous"
	}
	if err := c.Login(user, pass); err != nil {
		return dir, fmt.Errorf("login: %w", err)
	}

	files, total, err := walk(ctx, c, root)
	if err != nil {
		return dir, err
	}
	log.Info("remote folder listed", zap.Int("files", len(files)), zap.Int64("bytes", total))

	if err := os.RemoveAll(dir); err != nil {
		return dir, fmt.Errorf("clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return dir, fmt.Errorf("create %s: %w", dir, err)
	}

	var done int64
	for _, f := range files {
		n, err := fetch(ctx, c, f, dir, func(n int64) {
			done += n
			if progress != nil {
				progress(done, total)
			}
		})
		if err != nil {
			return dir, fmt.Errorf("retrieve %s after %d bytes: %w", f.path, n, err)
		}
	}
	return dir, nil
}

func passiveMode(mode string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "passive", "epsv":
		return false, nil
	case "pasv":
		return true, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}
}

// walk lists root breadth first and returns every regular file below it.
func walk(ctx context.Context, c Conn, root string) ([]remoteFile, int64, error) {
	var (
		files []remoteFile
		total int64
	)
	pending := []string{root}
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		current := pending[0]
		pending = pending[1:]
		entries, err := c.List(current)
		if err != nil {
			return nil, 0, fmt.Errorf("list %s: %w", current, err)
		}
		for _, entry := range entries {
			if entry == nil || entry.Name == "." || entry.Name == ".." {
				continue
			}
			full := path.Join(current, entry.Name)
			switch entry.Type {
			case ftp.EntryTypeFolder:
				pending = append(pending, full)
			case ftp.EntryTypeFile:
				rel := strings.TrimPrefix(strings.TrimPrefix(full, root), "/")
				files = append(files, remoteFile{path: full, rel: rel, size: int64(entry.Size)})
				total += int64(entry.Size)
			}
		}
	}
	return files, total, nil
}

func fetch(ctx context.Context, c Conn, f remoteFile, dir string, counted func(int64)) (int64, error) {
	local := filepath.Join(dir, filepath.FromSlash(f.rel))
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return 0, err
	}
	body, err := c.Retr(f.path)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	out, err := os.Create(local)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, &countingReader{ctx: ctx, r: body, counted: counted})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// countingReader reports each chunk read and stops once ctx is done.
type countingReader struct {
	ctx     context.Context
	r       io.Reader
	counted func(int64)
}

func (r *countingReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := r.r.Read(p)
	if n > 0 {
		r.counted(int64(n))
	}
	return n, err
}
