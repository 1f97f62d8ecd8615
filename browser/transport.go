package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"
)

// maxBody caps every response body read through a page.
const maxBody = 10 << 20

// firefoxH1Spec is a Firefox ClientHello with ALPN forced to http/1.1 so
// the fingerprint matches the Firefox user agent while net/http keeps
// speaking HTTP/1.1 over the utls connection.
var firefoxH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloFirefox_Auto)
	if err != nil {
		return
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	firefoxH1Spec = spec
}

// contextDialer is what both net.Dialer and the SOCKS5 dialer provide.
type contextDialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// newHTTPClient builds the client shared by every request of a page:
// Firefox TLS fingerprint, optional proxy, and a public-suffix aware
// cookie jar.
func newHTTPClient(opts Options) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("browser: cookie jar: %w", err)
	}

	var dialer contextDialer = &net.Dialer{Timeout: 10 * time.Second}
	transport := &http.Transport{ForceAttemptHTTP2: false}

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("browser: proxy url: %w", err)
		}
		switch proxyURL.Scheme {
		case "http", "https":
			transport.Proxy = http.ProxyURL(proxyURL)
		case "socks5", "socks5h":
			d, err := proxy.FromURL(proxyURL, &net.Dialer{Timeout: 10 * time.Second})
			if err != nil {
				return nil, fmt.Errorf("browser: socks5 proxy: %w", err)
			}
			cd, ok := d.(proxy.ContextDialer)
			if !ok {
				return nil, errors.New("browser: socks5 dialer does not support contexts")
			}
			dialer = cd
		default:
			return nil, fmt.Errorf("browser: unsupported proxy scheme %q", proxyURL.Scheme)
		}
	}

	transport.DialContext = dialer.DialContext
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialTLSFirefox(ctx, dialer, network, addr, opts.InsecureTLS)
	}

	return &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   opts.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}, nil
}

// dialTLSFirefox establishes a TLS connection with the Firefox fingerprint.
func dialTLSFirefox(ctx context.Context, dialer contextDialer, network, addr string, insecure bool) (net.Conn, error) {
	rawConn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(rawConn, &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: insecure,
	}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&firefoxH1Spec); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("browser: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// do executes req and reads the whole body.
func do(ctx context.Context, client *http.Client, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("browser: build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("browser: read body: %w", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		URL:        resp.Request.URL.String(),
	}, nil
}

// DecodeText converts a response body to UTF-8. With sniff set the HTML
// meta prescan is used when the Content-Type carries no charset (document
// loads); otherwise bodies without a declared charset are taken as UTF-8.
func DecodeText(body []byte, contentType string, sniff bool) string {
	if !sniff && !strings.Contains(strings.ToLower(contentType), "charset=") {
		return string(body)
	}
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return string(body)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}
