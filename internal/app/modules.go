package app

import (
	"github.com/vk/entitystorego/internal/registry"
	"github.com/vk/entitystorego/modules/attributes"
	"github.com/vk/entitystorego/modules/levels"
)

// coreExtensions is the definitive list of data modules compiled into the
// entitystorego binary. Collaborating extensions append their own at
// NewApp time.
var coreExtensions = []registry.Extension{
	&levels.Module{},
	&attributes.Module{},
}
