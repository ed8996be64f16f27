package api

import (
	"net"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/octa-computer/transfer-manager/internal/constants"
)

// newTransport builds the shared transport: 15 s to connect and to first
// header byte. There is deliberately no overall request timeout; streaming
// data-plane calls run as long as bytes keep flowing.
func newTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: constants.HTTPDialTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ResponseHeaderTimeout: constants.HTTPResponseHeaderTimeout,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
	}
}

// newDataClient returns the single-attempt client used for data-plane
// PUT/GET. Retry is owned by the worker loop, which must rewind progress
// counters between attempts; transport-level retries would corrupt them.
func newDataClient() *http.Client {
	return &http.Client{Transport: newTransport()}
}

// newControlClient wraps the transport with bounded retries for short
// control-plane RPCs.
func newControlClient(retryMax int, log zerolog.Logger) *http.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Transport: newTransport()}
	rc.RetryMax = retryMax
	rc.RetryWaitMin = constants.ControlRetryWaitMin
	rc.RetryWaitMax = constants.ControlRetryWaitMax
	rc.Logger = &retryLogger{log: log}
	return rc.StandardClient()
}

// retryLogger adapts zerolog to the retryablehttp.LeveledLogger interface.
// Info/Debug are dropped; per-attempt chatter drowns the useful lines.
type retryLogger struct {
	log zerolog.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}
