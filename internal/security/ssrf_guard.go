package security

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

var (
	// ErrInvalidURL はURLの形式・スキームが不正な場合のエラー。
	ErrInvalidURL = errors.New("invalid url")
	// ErrBlockedDestination は接続先がプライベートネットワーク等でブロックされた場合のエラー。
	ErrBlockedDestination = errors.New("blocked destination")
	// ErrFetchFailed はリモートリソースの取得に失敗した場合のエラー。
	ErrFetchFailed = errors.New("fetch failed")
	// ErrTooLarge はレスポンスが上限サイズを超えた場合のエラー。
	ErrTooLarge = errors.New("response too large")
)

// SSRFGuard はSSRF防止機能のインターフェース。
// プロフィールURLの検証とURL指定の画像取り込みで使用する。
type SSRFGuard interface {
	// ValidateURL はDNS解決を伴わない静的な検証を行う。
	ValidateURL(rawURL string) error
	// FetchImage はSSRF防止付きクライアントでURLを取得し、本文と判定したContent-Typeを返す。
	FetchImage(ctx context.Context, rawURL string, maxSize int64) (*RemoteFile, error)
}

// RemoteFile は取得したリモートファイル。
type RemoteFile struct {
	Data        []byte
	ContentType string
}

// allowedSchemes はSSRF防止で許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks はValidateURLで拒否するネットワーク範囲。
// 接続時の検証はsafeurlがDNS解決後のIPアドレスに対して行う。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック
		"127.0.0.0/8",
		// リンクローカル（クラウドメタデータIPを含む）
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// ssrfGuard はSSRFGuardの実装。
type ssrfGuard struct {
	client *http.Client
}

// NewSSRFGuard は取得タイムアウトを指定してSSRFGuardを生成する。
// safeurlはnet.DialerのControlフックでDNS解決後のIPアドレスを検証するため、
// DNS再バインディング攻撃にも対応している。
func NewSSRFGuard(timeout time.Duration) *ssrfGuard {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return &ssrfGuard{client: safeurl.Client(config).Client}
}

// ValidateURL はURLの安全性を事前に検証する。
// 形式不正はErrInvalidURL、危険な接続先はErrBlockedDestinationをラップして返す。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: empty URL", ErrInvalidURL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("%w: disallowed scheme %q", ErrInvalidURL, scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("%w: %s", ErrBlockedDestination, ip.String())
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("%w: %s", ErrBlockedDestination, host)
	}

	return nil
}

// FetchImage はURLを検証した上でリモートファイルを取得する。
func (g *ssrfGuard) FetchImage(ctx context.Context, rawURL string, maxSize int64) (*RemoteFile, error) {
	if err := g.ValidateURL(rawURL); err != nil {
		return nil, err
	}
	return g.fetch(ctx, rawURL, maxSize)
}

func (g *ssrfGuard) fetch(ctx context.Context, rawURL string, maxSize int64) (*RemoteFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if blockedAtDial(err) {
			return nil, fmt.Errorf("%w: %v", ErrBlockedDestination, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}
	if resp.ContentLength > maxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxSize)
	}

	// Content-Typeヘッダーは信用せず本文から判定する
	return &RemoteFile{Data: data, ContentType: http.DetectContentType(data)}, nil
}

// blockedAtDial はsafeurlが接続時に拒否したエラーかを返す。
// DNS解決後のIPやリダイレクト先のポートはValidateURLでは検出できない。
func blockedAtDial(err error) bool {
	var ipErr *safeurl.AllowedIPError
	var portErr *safeurl.AllowedPortError
	var v6Err *safeurl.IPv6BlockedError
	return errors.As(err, &ipErr) || errors.As(err, &portErr) || errors.As(err, &v6Err)
}

// isAllowedScheme はURLスキームが許可リストに含まれるかを検証する。
func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isBlockedIP はIPアドレスがブロック対象のネットワーク範囲に含まれるかを検証する。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
