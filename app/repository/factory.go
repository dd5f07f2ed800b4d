package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	sourceDB      *gorm.DB
	destDB        *gorm.DB
	statementSize int
	repos         *Repositories
	once          sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(sourceDB, destDB *gorm.DB, statementSize int) *Factory {
	return &Factory{
		sourceDB:      sourceDB,
		destDB:        destDB,
		statementSize: statementSize,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.sourceDB, f.destDB, f.statementSize)
	})
	return f.repos
}

// GetSourceBetRepository returns the source bet repository instance
func (f *Factory) GetSourceBetRepository() SourceBetRepository {
	return f.GetRepositories().SourceBet
}

// GetBetRepository returns the rollup bet repository instance
func (f *Factory) GetBetRepository() BetRepository {
	return f.GetRepositories().Bet
}

// Global factory instance
var globalFactory *Factory
var factoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(sourceDB, destDB *gorm.DB, statementSize int) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(sourceDB, destDB, statementSize)
	})
}

// GetGlobalFactory returns the global repository factory instance
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("Repository factory not initialized. Call InitializeFactory first.")
	}
	return globalFactory
}
