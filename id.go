package curator

import "github.com/xraph/curator/id"

// ID is the identifier type for Curator-owned entities (workers,
// quarantine entries). Job ids are producer-assigned opaque strings and
// do not use this type.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
