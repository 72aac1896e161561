package services

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"
	"time"
)

// CertInfo is what an SSL monitor keeps about a peer certificate.
type CertInfo struct {
	Issuer    string
	ValidFrom time.Time
	ValidTo   time.Time
	Protocol  string
}

// CertFetcher reads the certificate presented by the host of a URL.
type CertFetcher interface {
	FetchCertificate(ctx context.Context, rawURL string) (CertInfo, error)
}

// TLSFetcher dials port 443 of the URL's host.
type TLSFetcher struct {
	Timeout time.Duration
	Port    string
}

func NewTLSFetcher(timeout time.Duration) *TLSFetcher {
	return &TLSFetcher{Timeout: timeout, Port: "443"}
}

func (f *TLSFetcher) FetchCertificate(ctx context.Context, rawURL string) (CertInfo, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return CertInfo{}, newError(ErrProbeFailure, err, "invalid URL or SSL verification failed: %q", rawURL)
	}
	host := u.Hostname()

	port := f.Port
	if port == "" {
		port = "443"
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: f.Timeout},
		Config: &tls.Config{
			ServerName: host,
			// Expired and self-signed certificates still have to be reported.
			InsecureSkipVerify: true,
		},
	}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return CertInfo{}, newError(ErrProbeFailure, err, "SSL verification failed")
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	return certInfoFromState(state)
}

func certInfoFromState(state tls.ConnectionState) (CertInfo, error) {
	if len(state.PeerCertificates) == 0 {
		return CertInfo{}, newError(ErrProbeFailure, ErrNoCertificate, "")
	}
	leaf := state.PeerCertificates[0]

	issuer := "Unknown Issuer"
	if len(leaf.Issuer.Organization) > 0 && leaf.Issuer.Organization[0] != "" {
		issuer = leaf.Issuer.Organization[0]
	}

	return CertInfo{
		Issuer:    issuer,
		ValidFrom: leaf.NotBefore,
		ValidTo:   leaf.NotAfter,
		Protocol:  tls.VersionName(state.Version),
	}, nil
}
