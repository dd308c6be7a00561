package gologger

import (
	"strings"

	"github.com/goliatone/go-blueledger/core"
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

const LedgerLoggerName = "blueledger"

// Resolve uses deterministic precedence provider > logger > nop. A blank name
// resolves the ledger logger.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	if strings.TrimSpace(name) == "" {
		name = LedgerLoggerName
	}
	return glog.Resolve(name, provider, logger)
}

// ServiceOptions resolves the ledger logger and returns it as service options.
func ServiceOptions(provider glog.LoggerProvider, logger glog.Logger) []core.Option {
	resolvedProvider, resolvedLogger := Resolve(LedgerLoggerName, provider, logger)
	opts := make([]core.Option, 0, 2)
	if resolvedProvider != nil {
		opts = append(opts, core.WithLoggerProvider(resolvedProvider))
	}
	if resolvedLogger != nil {
		opts = append(opts, core.WithLogger(resolvedLogger))
	}
	return opts
}

func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob also returns the go-job views of the resolved pair.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
