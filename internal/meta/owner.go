package meta

import (
	"os/user"
	"strconv"
)

// ResolvePrincipal looks up the local password/group database for a name
// matching id. Non-UTF-8 or unresolvable names come back as an empty
// Name, never an error — ownership translation is best-effort.
func ResolvePrincipal(id uint64, group bool) *Principal {
	p := &Principal{ID: id}

	s := strconv.FormatUint(id, 10)
	if group {
		if g, err := user.LookupGroupId(s); err == nil {
			p.Name = g.Name
		}
	} else {
		if u, err := user.LookupId(s); err == nil {
			p.Name = u.Username
		}
	}

	return p
}
