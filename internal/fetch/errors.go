package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/url"

	"stockwatch/internal/model"
)

// ClassifyError maps a transport-level error (and, where relevant, an HTTP
// status code) onto the ErrorKind taxonomy the retry/backoff policy and the
// store's check_history branch on (§4.3, §4.6).
func ClassifyError(err error, statusCode int) model.ErrorKind {
	if err == nil {
		return classifyStatus(statusCode)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return model.ErrorKindDNS
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return model.ErrorKindTLS
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "tls" {
			return model.ErrorKindTLS
		}
		return model.ErrorKindConnect
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return model.ErrorKindTimeout
		}
		return ClassifyError(urlErr.Err, statusCode)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrorKindTimeout
	}

	return model.ErrorKindConnect
}

func classifyStatus(statusCode int) model.ErrorKind {
	switch {
	case statusCode == 403 || statusCode == 429 || statusCode == 503:
		return model.ErrorKindBlocked
	case statusCode >= 500:
		return model.ErrorKindServerError
	default:
		return model.ErrorKindNone
	}
}
