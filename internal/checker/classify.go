package checker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
)

// messagePatterns is the substring fallback for errors that arrive without a
// typed cause, checked in order.
var messagePatterns = []struct {
	kind      domain.ErrorKind
	fragments []string
}{
	{domain.ErrorKindTimeout, []string{"timed out", "timeout", "deadline exceeded"}},
	{domain.ErrorKindDNS, []string{"no such host", "could not resolve", "server misbehaving"}},
	{domain.ErrorKindSSL, []string{"ssl", "tls", "x509", "certificate"}},
	{domain.ErrorKindConnectionRefused, []string{"connection refused"}},
}

// ClassifyError maps a transport failure to an ErrorKind.
func ClassifyError(err error) domain.ErrorKind {
	if err == nil {
		return domain.ErrorKindNetwork
	}

	if kind, ok := classifyTyped(err); ok {
		return kind
	}

	msg := strings.ToLower(err.Error())
	for _, p := range messagePatterns {
		for _, fragment := range p.fragments {
			if strings.Contains(msg, fragment) {
				return p.kind
			}
		}
	}

	return domain.ErrorKindNetwork
}

func classifyTyped(err error) (domain.ErrorKind, bool) {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.ErrorKindDNS, true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorKindTimeout, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrorKindTimeout, true
	}

	if isTLSError(err) {
		return domain.ErrorKindSSL, true
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return domain.ErrorKindConnectionRefused, true
	}

	if errors.Is(err, ErrTooManyRedirects) {
		return domain.ErrorKindNetwork, true
	}

	return "", false
}

func isTLSError(err error) bool {
	var (
		unknownAuthority x509.UnknownAuthorityError
		hostnameErr      x509.HostnameError
		invalidCert      x509.CertificateInvalidError
		verifyErr        *tls.CertificateVerificationError
		recordHeaderErr  tls.RecordHeaderError
	)

	return errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidCert) ||
		errors.As(err, &verifyErr) ||
		errors.As(err, &recordHeaderErr)
}
