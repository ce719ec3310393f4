// Copyright 2025 The Outline Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ipcheck looks up the public IP address, location and hostname seen by the outside
// world when connecting through a given proxy.
package ipcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

const (
	// DefaultURL is a free lookup service that needs no key.
	DefaultURL     = "http://ip-api.com/json/"
	DefaultTimeout = 10 * time.Second

	// Unknown is displayed in place of values a failed lookup could not provide.
	Unknown = "unknown"
	// NoHostname is returned when an address has no reverse DNS name.
	NoHostname = "-"
)

// Info is the lookup service's view of the connection.
type Info struct {
	IP           string `json:"query"`
	Country      string `json:"country"`
	City         string `json:"city"`
	ISP          string `json:"isp"`
	Organization string `json:"org"`
}

// Location returns "city, country".
func (i Info) Location() string {
	return fmt.Sprintf("%s, %s", i.City, i.Country)
}

type lookupResponse struct {
	Info
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Checker performs lookups. The zero value uses [DefaultURL] and [DefaultTimeout].
type Checker struct {
	URL     string
	Timeout time.Duration
	// Resolver is used for reverse lookups. Nil means net.DefaultResolver.
	Resolver *net.Resolver
}

func (c *Checker) url() string {
	if c.URL == "" {
		return DefaultURL
	}
	return c.URL
}

func (c *Checker) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// Lookup queries the service through proxyAddress, or directly if it is empty. The call fails
// after the checker's timeout.
func (c *Checker) Lookup(ctx context.Context, proxyAddress string) (*Info, error) {
	transport, err := newTransport(proxyAddress)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Transport: transport, Timeout: c.timeout()}
	defer httpClient.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		if scheme, hostport := proxyTarget(proxyAddress); scheme == "socks" {
			return nil, fmt.Errorf("request through SOCKS proxy %v failed, only SOCKS5 is supported: %w", hostport, err)
		}
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lookup returned %v", resp.Status)
	}

	var lookup lookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&lookup); err != nil {
		return nil, fmt.Errorf("failed to decode lookup response: %w", err)
	}
	if lookup.Status == "fail" {
		return nil, fmt.Errorf("lookup failed: %v", lookup.Message)
	}
	if lookup.IP == "" {
		return nil, errors.New("lookup response has no IP address")
	}
	return &lookup.Info, nil
}

// Hostname returns the reverse DNS name of ip, or [NoHostname].
func (c *Checker) Hostname(ctx context.Context, ip string) string {
	if strings.TrimSpace(ip) == "" {
		return NoHostname
	}
	resolver := c.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	names, err := resolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return NoHostname
	}
	return strings.TrimSuffix(names[0], ".")
}

// Check runs [Checker.Lookup] and, on success, [Checker.Hostname].
func (c *Checker) Check(ctx context.Context, proxyAddress string) Result {
	result := Result{Proxy: proxyAddress, Hostname: NoHostname}
	result.Info, result.Err = c.Lookup(ctx, proxyAddress)
	if result.Err == nil {
		result.Hostname = c.Hostname(ctx, result.Info.IP)
	}
	return result
}

// Result is the outcome of a [Checker.Check].
type Result struct {
	// Proxy is the address the lookup went through. Empty means direct.
	Proxy    string
	Info     *Info
	Hostname string
	Err      error
}

// IP returns the observed address, or [Unknown].
func (r Result) IP() string {
	if r.Info == nil || r.Info.IP == "" {
		return Unknown
	}
	return r.Info.IP
}

// Location returns "city, country", or [Unknown].
func (r Result) Location() string {
	if r.Info == nil {
		return Unknown
	}
	return r.Info.Location()
}

func (r Result) String() string {
	return fmt.Sprintf("IP: %v | %v | %v", r.IP(), r.Location(), r.Hostname)
}

// proxyTarget interprets a system proxy address. Besides the plain "host:port" form, the
// registry accepts per-scheme lists such as "http=h:p;https=h:p;socks=h:p". The http entry is
// preferred, then socks.
//
// WinINet means SOCKS4 by a socks entry. It is dialed with SOCKS5 here, so a server that only
// speaks SOCKS4 fails the lookup and the result reads as unknown.
func proxyTarget(address string) (scheme string, hostport string) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", ""
	}
	if !strings.Contains(address, "=") {
		if u, err := url.Parse(address); err == nil && strings.Contains(address, "://") {
			return strings.ToLower(u.Scheme), u.Host
		}
		return "http", address
	}
	entries := map[string]string{}
	for _, entry := range strings.Split(address, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		entries[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	if hp := entries["http"]; hp != "" {
		return "http", hp
	}
	if hp := entries["socks"]; hp != "" {
		return "socks", hp
	}
	return "", ""
}

func newTransport(proxyAddress string) (*http.Transport, error) {
	transport := &http.Transport{}
	scheme, hostport := proxyTarget(proxyAddress)
	switch scheme {
	case "":
		// Direct, ignoring environment proxies.
	case "http", "https":
		transport.Proxy = http.ProxyURL(&url.URL{Scheme: scheme, Host: hostport})
	case "socks", "socks5":
		dialer, err := proxy.SOCKS5("tcp", hostport, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("could not create SOCKS5 dialer: %w", err)
		}
		contextDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, errors.New("SOCKS5 dialer does not support contexts")
		}
		transport.DialContext = contextDialer.DialContext
	default:
		return nil, fmt.Errorf("proxy scheme %v is not supported", scheme)
	}
	return transport, nil
}
