package memory

import (
	"testing"

	"stockroom/testutil"
)

func TestImportsAreDomainOrExternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.ModuleImportsOutside("stockroom/pkg/domain"), "memory store depends only on domain")
}
