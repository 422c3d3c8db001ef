// Package tlsutil 集中提供 TLS 配置：gateway 拨号 wss:// 的握手客户端、
// Redis 通道的 TLS 连接以及 health 子命令的 HTTP 客户端。
// 安全加固：TLS 1.2+，仅 AEAD 密码套件。
package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// DefaultTLSConfig returns a hardened TLS configuration.
// MinVersion TLS 1.2, AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// RedisTLSConfig 返回连接 Redis 用的配置，serverName 为空时从地址推断
func RedisTLSConfig(addr string) *tls.Config {
	cfg := DefaultTLSConfig()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		cfg.ServerName = host
	}
	return cfg
}

// WebSocketTransport 只协商 HTTP/1.1，WebSocket 升级无法走 HTTP/2
func WebSocketTransport() *http.Transport {
	tlsCfg := DefaultTLSConfig()
	tlsCfg.NextProtos = []string{"http/1.1"}
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: tlsCfg,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   false,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// WebSocketClient 用于 WebSocket 握手。不设置 Timeout，握手期限由 ctx 决定
func WebSocketClient() *http.Client {
	return &http.Client{Transport: WebSocketTransport()}
}

// SecureHTTPClient returns an http.Client with TLS hardening.
func SecureHTTPClient(timeout time.Duration) *http.Client {
	tr := WebSocketTransport()
	tr.ForceAttemptHTTP2 = true
	tr.TLSClientConfig.NextProtos = nil
	tr.MaxIdleConns = 10
	tr.IdleConnTimeout = 90 * time.Second
	return &http.Client{
		Timeout:   timeout,
		Transport: tr,
	}
}
