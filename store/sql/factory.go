package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-blueledger/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db           *bun.DB
	summaryCache repositorycache.CacheService

	projectStore     *ProjectStore
	attestationStore *AttestationStore
	summaryStore     core.SummaryStore
	ledgerStore      *LedgerStore
}

type FactoryOption func(*RepositoryFactory)

// WithSummaryCache serves oracle summary reads through cacheService.
func WithSummaryCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.summaryCache = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.projectStore != nil && f.ledgerStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) ProjectStore() core.ProjectStore {
	if f == nil {
		return nil
	}
	return f.projectStore
}

func (f *RepositoryFactory) AttestationStore() core.AttestationStore {
	if f == nil {
		return nil
	}
	return f.attestationStore
}

func (f *RepositoryFactory) SummaryStore() core.SummaryStore {
	if f == nil {
		return nil
	}
	return f.summaryStore
}

func (f *RepositoryFactory) LedgerStore() core.LedgerStore {
	if f == nil {
		return nil
	}
	return f.ledgerStore
}

func (f *RepositoryFactory) initStores() error {
	projectStore, err := NewProjectStore(f.db)
	if err != nil {
		return err
	}
	attestationStore, err := NewAttestationStore(f.db)
	if err != nil {
		return err
	}
	summaryStore, err := NewSummaryStore(f.db)
	if err != nil {
		return err
	}
	ledgerStore, err := NewLedgerStore(f.db)
	if err != nil {
		return err
	}

	f.projectStore = projectStore
	f.attestationStore = attestationStore
	f.summaryStore = summaryStore
	f.ledgerStore = ledgerStore
	if f.summaryCache != nil {
		cached, err := NewCachedSummaryStore(summaryStore, f.summaryCache)
		if err != nil {
			return err
		}
		f.summaryStore = cached
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
