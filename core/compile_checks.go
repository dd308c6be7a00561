package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Ledger          = (*Service)(nil)
	_ ProjectRegistry = (*Service)(nil)
	_ MRVRegistry     = (*Service)(nil)
	_ OracleIssuer    = (*Service)(nil)
	_ CreditLedger    = (*Service)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
