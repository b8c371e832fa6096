package fetch

import (
	"bufio"
	"bytes"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	_ "modernc.org/sqlite"

	"github.com/lysyi3m/rss-offline/app/fsutil"
)

var sqliteMagic = []byte("SQLite format 3\x00")

type storedCookie struct {
	host    string
	path    string
	secure  bool
	expires time.Time
	name    string
	value   string
}

// NewJar returns a cookie jar seeded from cookieFile, which may be a Firefox
// cookies.sqlite database or a Netscape cookies.txt file. An empty path
// gives an empty jar.
func NewJar(cookieFile string) (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	if cookieFile == "" {
		return jar, nil
	}

	cookies, err := loadCookies(cookieFile)
	if err != nil {
		return nil, &CookieSourceError{Path: cookieFile, Err: err}
	}

	for _, c := range cookies {
		setStoredCookie(jar, c)
	}

	slog.Debug("Cookies loaded", "file", cookieFile, "count", len(cookies))
	return jar, nil
}

func loadCookies(cookieFile string) ([]storedCookie, error) {
	f, err := os.Open(cookieFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, len(sqliteMagic))
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	if bytes.Equal(header[:n], sqliteMagic) {
		return loadFirefoxCookies(cookieFile)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return loadNetscapeCookies(f)
}

// loadFirefoxCookies reads moz_cookies from a copy of the database, since
// a running browser keeps the original locked.
func loadFirefoxCookies(cookieFile string) ([]storedCookie, error) {
	tmpDir, err := os.MkdirTemp("", "cookies")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	dbCopy := filepath.Join(tmpDir, "cookies.sqlite")
	if err := fsutil.CopyFile(cookieFile, dbCopy); err != nil {
		return nil, fmt.Errorf("failed to copy cookie database: %w", err)
	}

	db, err := sql.Open("sqlite", dbCopy)
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie database: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT host, path, isSecure, expiry, name, value FROM moz_cookies`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cookies: %w", err)
	}
	defer rows.Close()

	var cookies []storedCookie
	for rows.Next() {
		var (
			c      storedCookie
			secure int64
			expiry int64
		)
		if err := rows.Scan(&c.host, &c.path, &secure, &expiry, &c.name, &c.value); err != nil {
			return nil, fmt.Errorf("failed to scan cookie: %w", err)
		}
		c.secure = secure != 0
		c.expires = expiryTime(expiry)
		cookies = append(cookies, c)
	}

	return cookies, rows.Err()
}

func loadNetscapeCookies(r io.Reader) ([]storedCookie, error) {
	var cookies []storedCookie

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "#HttpOnly_")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			return nil, fmt.Errorf("malformed cookie line: %q", line)
		}

		expiry, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed cookie expiry %q: %w", fields[4], err)
		}

		cookies = append(cookies, storedCookie{
			host:    fields[0],
			path:    fields[2],
			secure:  strings.EqualFold(fields[3], "TRUE"),
			expires: expiryTime(expiry),
			name:    fields[5],
			value:   fields[6],
		})
	}

	return cookies, scanner.Err()
}

// expiryTime accepts seconds or, as newer browsers store them, milliseconds.
// Zero means a session cookie.
func expiryTime(expiry int64) time.Time {
	switch {
	case expiry <= 0:
		return time.Time{}
	case expiry > 100_000_000_000:
		return time.UnixMilli(expiry)
	default:
		return time.Unix(expiry, 0)
	}
}

func setStoredCookie(jar http.CookieJar, c storedCookie) {
	host := strings.TrimPrefix(c.host, ".")
	if host == "" || c.name == "" {
		return
	}

	scheme := "http"
	if c.secure {
		scheme = "https"
	}
	path := c.path
	if path == "" {
		path = "/"
	}

	cookie := &http.Cookie{
		Name:    c.name,
		Value:   c.value,
		Path:    path,
		Secure:  c.secure,
		Expires: c.expires,
	}
	if strings.HasPrefix(c.host, ".") {
		cookie.Domain = host
	}

	jar.SetCookies(&url.URL{Scheme: scheme, Host: host, Path: path}, []*http.Cookie{cookie})
}
