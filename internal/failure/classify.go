// Package failure classifies ingestion errors, chooses a handling strategy,
// de-duplicates alerts and drives automatic recovery.
package failure

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"ehs/internal/domain"
	"ehs/internal/offender/registry"
	"ehs/internal/ratelimit"
	"ehs/pkg/platform/circuit"
	"ehs/pkg/platform/dberr"
)

type Kind string

const (
	KindAPI         Kind = "api_error"
	KindDatabase    Kind = "database_error"
	KindValidation  Kind = "validation_error"
	KindBusiness    Kind = "business_error"
	KindApplication Kind = "application_error"
)

type Subkind string

const (
	SubTimeout           Subkind = "timeout"
	SubConnectionRefused Subkind = "connection_refused"
	SubSSL               Subkind = "ssl_error"
	SubTransport         Subkind = "transport_error"
	SubRateLimited       Subkind = "rate_limited"
	SubCircuitOpen       Subkind = "circuit_open"

	SubConnectionClosed    Subkind = "connection_closed"
	SubConstraintViolation Subkind = "constraint_violation"
	SubQuery               Subkind = "query_error"

	SubRequired Subkind = domain.ReasonRequired
	SubFormat   Subkind = domain.ReasonFormat
	SubInvalid  Subkind = domain.ReasonInvalid

	SubDuplicateEntity Subkind = domain.BusinessDuplicateEntity
	SubSyncFailure     Subkind = domain.BusinessSyncFailure

	SubCancelled Subkind = "cancelled"
	SubUnknown   Subkind = "unknown"
)

// Classification is the kind/subkind pair an error falls into.
type Classification struct {
	Kind    Kind    `json:"kind"`
	Subkind Subkind `json:"subkind"`
}

func (c Classification) String() string { return string(c.Kind) + "/" + string(c.Subkind) }

// Layer is the dependency an operation talks to. Ambiguous errors such as
// timeouts are attributed to it.
type Layer string

const (
	LayerAPI         Layer = "api"
	LayerDatabase    Layer = "database"
	LayerApplication Layer = "application"
)

// Context describes where an error happened.
type Context struct {
	Operation string `json:"operation"`
	Source    string `json:"source"`
	Layer     Layer  `json:"layer"`
	Critical  bool   `json:"critical"`
	Attempt   int    `json:"attempt,omitempty"`
}

// Classify maps err onto the taxonomy. Wrapped errors, including retry
// exhaustion, are classified by their cause.
func Classify(err error, ectx Context) Classification {
	switch {
	case err == nil:
		return Classification{}
	case errors.Is(err, context.Canceled):
		return Classification{KindApplication, SubCancelled}
	}

	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		switch validation.Reason {
		case domain.ReasonRequired, domain.ReasonFormat:
			return Classification{KindValidation, Subkind(validation.Reason)}
		}
		return Classification{KindValidation, SubInvalid}
	}

	var business *domain.BusinessError
	if errors.As(err, &business) {
		if business.Kind == domain.BusinessDuplicateEntity {
			return Classification{KindBusiness, SubDuplicateEntity}
		}
		return Classification{KindBusiness, SubSyncFailure}
	}

	if errors.Is(err, dberr.ErrConstraintViolation) {
		return Classification{KindDatabase, SubConstraintViolation}
	}
	if errors.Is(err, ratelimit.ErrRateLimited) {
		return Classification{KindAPI, SubRateLimited}
	}
	if errors.Is(err, circuit.ErrOpen) {
		if ectx.Layer == LayerDatabase {
			return Classification{KindDatabase, SubConnectionClosed}
		}
		return Classification{KindAPI, SubCircuitOpen}
	}
	if sub, ok := databaseSubkind(err); ok {
		return Classification{KindDatabase, sub}
	}

	var status *registry.StatusError
	if errors.As(err, &status) {
		switch {
		case status.Code == http.StatusTooManyRequests:
			return Classification{KindAPI, SubRateLimited}
		case status.Code == http.StatusGatewayTimeout || status.Code == http.StatusRequestTimeout:
			return Classification{KindAPI, SubTimeout}
		}
		return Classification{KindAPI, SubTransport}
	}

	if isTimeout(err) {
		return layered(ectx, SubTimeout, SubTimeout)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return layered(ectx, SubConnectionRefused, SubConnectionClosed)
	}
	if isTLS(err) {
		return Classification{KindAPI, SubSSL}
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) {
		return layered(ectx, SubTransport, SubConnectionClosed)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return layered(ectx, SubTransport, SubConnectionClosed)
	}
	return Classification{KindApplication, SubUnknown}
}

// layered picks the API or database subkind by the operation's layer.
func layered(ectx Context, api, db Subkind) Classification {
	if ectx.Layer == LayerDatabase {
		return Classification{KindDatabase, db}
	}
	return Classification{KindAPI, api}
}

func databaseSubkind(err error) (Subkind, bool) {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return SubConnectionClosed, true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return SubConnectionClosed, true
	}
	if pgconn.Timeout(err) {
		return SubTimeout, true
	}

	var code string
	var pgErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgErr):
		code = pgErr.Code
	case errors.As(err, &pqErr):
		code = string(pqErr.Code)
	default:
		return "", false
	}
	switch {
	case strings.HasPrefix(code, "08"), code == "57P01", code == "57P02", code == "57P03":
		return SubConnectionClosed, true
	case code == "57014":
		return SubTimeout, true
	case strings.HasPrefix(code, "23"):
		return SubConstraintViolation, true
	}
	return SubQuery, true
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isTLS(err error) bool {
	var (
		verify    *tls.CertificateVerificationError
		header    tls.RecordHeaderError
		authority x509.UnknownAuthorityError
		hostname  x509.HostnameError
		invalid   x509.CertificateInvalidError
	)
	return errors.As(err, &verify) || errors.As(err, &header) ||
		errors.As(err, &authority) || errors.As(err, &hostname) || errors.As(err, &invalid)
}
