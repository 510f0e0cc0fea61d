package memory_test

import (
	"testing"

	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/adapters/repository/memory"
	"github.com/okian/duel/internal/adapters/repository/repositorytest"
)

func TestMemoryStore(t *testing.T) {
	repositorytest.Run(t, func(t *testing.T) repository.Store {
		return memory.New()
	})
}
