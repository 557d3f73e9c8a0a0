package sqlite

import (
	"testing"

	"stockroom/testutil"
)

func TestImportsAreDomainOrPersistence(t *testing.T) {
	allowed := testutil.ModuleImportsOutside(
		"stockroom/pkg/domain",
		"stockroom/internal/infra/persistence/memory",
	)
	testutil.AssertNoDirectImports(t, ".", allowed, "sqlite store depends only on domain and the memory engine")
}
