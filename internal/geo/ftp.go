package geo

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const defaultFTPTimeout = 30 * time.Second

// parseFTPURL extracts host (with port) and path from an ftp:// URL.
func parseFTPURL(rawURL string) (host, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}
	if u.Path == "" || u.Path == "/" {
		return "", "", eris.New("empty path in ftp url")
	}
	return host, u.Path, nil
}

// ftpCredentials returns the URL's user info, or anonymous login.
func ftpCredentials(rawURL string) (user, pass string) {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return "anonymous", "anonymous@"
	}
	pass, _ = u.User.Password()
	return u.User.Username(), pass
}

// downloadFTP retrieves an ftp:// URL into dest.
func downloadFTP(ctx context.Context, rawURL, dest string, timeout time.Duration) error {
	host, path, err := parseFTPURL(rawURL)
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = defaultFTPTimeout
	}

	zap.L().Debug("geo: ftp download", zap.String("host", host), zap.String("path", path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return eris.Wrap(err, "ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	user, pass := ftpCredentials(rawURL)
	if err := conn.Login(user, pass); err != nil {
		return eris.Wrap(err, "ftp login")
	}

	resp, err := conn.Retr(path)
	if err != nil {
		return eris.Wrap(err, "ftp retrieve")
	}
	defer resp.Close() //nolint:errcheck

	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "create file")
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, resp); err != nil {
		return eris.Wrap(err, "write file")
	}
	return nil
}
