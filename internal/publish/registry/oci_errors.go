package registry

import (
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"

	"github.com/felixgeelhaar/releasekit/internal/errors"
)

// classifyRegistryError turns a go-containerregistry failure into a coded
// error with a recovery hint.
func classifyRegistryError(err error, ref, operation string) *errors.Error {
	if err == nil {
		return nil
	}

	var coded *errors.Error
	if stderrors.As(err, &coded) {
		return coded
	}

	var transportErr *transport.Error
	if stderrors.As(err, &transportErr) {
		switch transportErr.StatusCode {
		case http.StatusUnauthorized:
			return errors.Wrap(errors.CodeAuthFailed, fmt.Sprintf("authentication required for %s", ref), err).
				WithSuggestion("Log in with docker login or provide credentials in ~/.docker/config.json")
		case http.StatusForbidden:
			return errors.Wrap(errors.CodeAuthFailed, fmt.Sprintf("permission denied for %s", ref), err).
				WithSuggestion("For ghcr.io the token needs the write:packages scope")
		case http.StatusNotFound:
			return errors.Wrap(errors.CodePackageMissing, fmt.Sprintf("%s not found", ref), err)
		case http.StatusMethodNotAllowed:
			return errors.Wrap(errors.CodeRegistryError, fmt.Sprintf("registry does not allow %s on %s", operation, ref), err).
				WithSuggestion("Some registries disable manifest deletion; remove the version through the registry UI")
		}
		return errors.Wrap(errors.CodeRegistryError,
			fmt.Sprintf("registry %s failed for %s (HTTP %d)", operation, ref, transportErr.StatusCode), err)
	}

	var nameErr *name.ErrBadName
	if stderrors.As(err, &nameErr) {
		return errors.Wrap(errors.CodeRegistryError, fmt.Sprintf("invalid registry reference: %s", ref), err).
			WithSuggestion("References look like registry.example.com/org/repo:tag")
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return errors.Wrap(errors.CodeRegistryError, fmt.Sprintf("network error during %s of %s", operation, ref), err).
			WithSuggestion("Check connectivity to the registry and any proxy settings")
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unauthorized") || strings.Contains(msg, "authentication required") {
		return errors.Wrap(errors.CodeAuthFailed, fmt.Sprintf("authentication failed for %s", ref), err)
	}
	return errors.Wrap(errors.CodeRegistryError, fmt.Sprintf("registry %s failed for %s", operation, ref), err)
}

func isNotFound(err error) bool {
	var transportErr *transport.Error
	if stderrors.As(err, &transportErr) {
		return transportErr.StatusCode == http.StatusNotFound
	}
	return false
}

// isPermanentRegistryError reports failures a retry cannot fix.
func isPermanentRegistryError(err error) bool {
	var transportErr *transport.Error
	if stderrors.As(err, &transportErr) {
		switch transportErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest, http.StatusMethodNotAllowed:
			return true
		}
	}
	var nameErr *name.ErrBadName
	return stderrors.As(err, &nameErr)
}
