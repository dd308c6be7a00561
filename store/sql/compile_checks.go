package sqlstore

import "github.com/goliatone/go-blueledger/core"

var (
	_ core.ProjectStore           = (*ProjectStore)(nil)
	_ core.AttestationStore       = (*AttestationStore)(nil)
	_ core.SummaryStore           = (*SummaryStore)(nil)
	_ core.LedgerStore            = (*LedgerStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
